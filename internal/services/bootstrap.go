package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Lllllllleong/attachmentflow/internal/anthropic"
	"github.com/Lllllllleong/attachmentflow/internal/config"
	"github.com/Lllllllleong/attachmentflow/internal/convert"
	"github.com/Lllllllleong/attachmentflow/internal/events"
	"github.com/Lllllllleong/attachmentflow/internal/gcp"
	"github.com/Lllllllleong/attachmentflow/internal/ledger"
	"github.com/Lllllllleong/attachmentflow/internal/mail"
	"github.com/Lllllllleong/attachmentflow/internal/openai"
)

// newRunner builds the GCS store plus the optional ledger and event
// publisher every storage-triggered function shares.
func newRunner(ctx context.Context, cfg config.Config) (*Runner, error) {
	if err := cfg.RequireStorage(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := gcp.NewGCSStore(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	rc := RunnerConfig{Store: store, WorkspaceRoot: cfg.WorkspaceRoot}
	if cfg.LedgerEnabled {
		fsClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("failed to create firestore client: %w", err)
		}
		rc.Ledger = ledger.NewFirestoreRecorder(fsClient, cfg.FirestoreCollection)
	}
	if cfg.NatsURL != "" {
		pub, err := events.NewNATSPublisher(cfg.NatsURL, cfg.NatsToken, slog.Default())
		if err != nil {
			// Events are observability only.
			slog.Warn("Failed to connect to NATS. Stage events disabled.", "error", err)
		} else {
			rc.Events = pub
		}
	}
	return NewRunner(rc), nil
}

func secretClient(ctx context.Context, cfg config.Config) (*gcp.SecretClient, error) {
	sc, err := gcp.NewSecretClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create secret client: %w", err)
	}
	return sc, nil
}

// NewConvertToPDF wires the convert stage from cfg.
func NewConvertToPDF(ctx context.Context, cfg config.Config) (*ConvertFunction, error) {
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var legacy convert.LegacyProcessor
	if cfg.DocumentAIProcessor != "" {
		dai, err := gcp.NewDocumentAIConverter(ctx, cfg.ProjectID, cfg.DocumentAILocation, cfg.DocumentAIProcessor)
		if err != nil {
			return nil, fmt.Errorf("failed to create document ai client: %w", err)
		}
		legacy = dai
	} else {
		slog.Warn("DOCUMENTAI_PROCESSOR_ID is not set. .doc and .xls uploads will fail to convert.")
	}

	return NewConvertFunction(runner, convert.NewDocumentConverter(cfg.PandocPath, legacy)), nil
}

// NewRasterize wires the rasterize stage from cfg.
func NewRasterize(ctx context.Context, cfg config.Config) (*RasterizeFunction, error) {
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewRasterizeFunction(runner, convert.NewFitzRasterizer(cfg.JPEGQuality), RasterizeConfig{
		DPI:             cfg.RasterDPI,
		ImagesPerFolder: cfg.ImagesPerFolder,
	}), nil
}

// NewExtractText wires the extract-text stage. Prompts are read from the
// vault once per instance.
func NewExtractText(ctx context.Context, cfg config.Config) (*ExtractFunction, error) {
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secrets, err := secretClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer secrets.Close()

	var prompts Prompts
	if prompts.System, err = secrets.GetSecret(ctx, gcp.SecretDecodeSystemPrompt, ""); err != nil {
		return nil, err
	}
	if prompts.User, err = secrets.GetSecret(ctx, gcp.SecretDecodeUserPrompt, ""); err != nil {
		return nil, err
	}

	var extractor TextExtractor
	switch cfg.ExtractProvider {
	case "vertex":
		extractor, err = gcp.NewVertexExtractor(ctx, cfg.ProjectID, cfg.VertexRegion, cfg.VertexModel)
		if err != nil {
			return nil, fmt.Errorf("failed to create vertex client: %w", err)
		}
	case "anthropic":
		apiKey := cfg.AnthropicAPIKey
		if apiKey == "" {
			if apiKey, err = secrets.GetSecret(ctx, gcp.SecretClaudeAPIKey, ""); err != nil {
				return nil, err
			}
		}
		extractor = anthropic.NewClient(apiKey, cfg.AnthropicModel)
	default:
		return nil, fmt.Errorf("unknown EXTRACT_PROVIDER %q", cfg.ExtractProvider)
	}

	return NewExtractFunction(runner, extractor, prompts, cfg.JPEGQuality), nil
}

// NewConcatenate wires the concatenate stage from cfg.
func NewConcatenate(ctx context.Context, cfg config.Config) (*ConcatenateFunction, error) {
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewConcatenateFunction(runner), nil
}

// NewSummarize wires the summarize stage. The API key and system prompt
// come from the vault.
func NewSummarize(ctx context.Context, cfg config.Config) (*SummarizeFunction, error) {
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secrets, err := secretClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer secrets.Close()

	apiKey, err := secrets.GetSecret(ctx, gcp.SecretChatGPTAPIKey, "")
	if err != nil {
		return nil, err
	}
	systemPrompt, err := secrets.GetSecret(ctx, gcp.SecretChatGPTSystemPrompt, "")
	if err != nil {
		return nil, err
	}
	completer, err := openai.NewClient(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.OpenAIModel,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}
	return NewSummarizeFunction(runner, completer, systemPrompt), nil
}

// NewNotify wires the notify stage. Mail goes out through the Gmail API as
// NOTIFY_FROM using the delegated service account stored in the vault.
func NewNotify(ctx context.Context, cfg config.Config) (*NotifyFunction, error) {
	if cfg.NotifyFrom == "" {
		return nil, fmt.Errorf("NOTIFY_FROM environment variable must be set")
	}
	runner, err := newRunner(ctx, cfg)
	if err != nil {
		return nil, err
	}
	secrets, err := secretClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer secrets.Close()

	key, err := secrets.GetSecret(ctx, gcp.SecretGmailServiceAccount, "")
	if err != nil {
		return nil, err
	}
	sender, err := mail.NewGmailSender(ctx, []byte(key), cfg.NotifyFrom)
	if err != nil {
		return nil, err
	}
	return NewNotifyFunction(runner, sender, NotifyConfig{
		From:              cfg.NotifyFrom,
		Subject:           cfg.NotifySubject,
		FallbackRecipient: cfg.NotifyFallbackRecipient,
	}), nil
}
