// Package config reads process configuration once at start-up.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ProjectID     string
	Bucket        string
	LogLevel      string
	WorkspaceRoot string

	// rasterize
	RasterDPI       int
	ImagesPerFolder int
	JPEGQuality     int

	// convert-to-pdf
	PandocPath          string
	DocumentAILocation  string
	DocumentAIProcessor string

	// extract-text
	ExtractProvider string
	VertexRegion    string
	VertexModel     string
	AnthropicModel  string
	AnthropicAPIKey string

	// summarize
	OpenAIModel   string
	OpenAIBaseURL string

	// ledger and events
	LedgerEnabled       bool
	FirestoreCollection string
	NatsURL             string
	NatsToken           string

	// notify
	NotifyFrom              string
	NotifySubject           string
	NotifyFallbackRecipient string

	// intake chat
	Port             int
	SMTPServer       string
	SMTPPort         int
	SMTPUsername     string
	SMTPPassword     string
	SenderEmail      string
	RecipientEmail   string
	SessionBackend   string
	SessionIdleTTL   time.Duration
	SessionMax       int
	RedisAddr        string
	RedisPassword    string
	Sequencer        string
	IntakeCollection string
}

// Load reads a .env file when one is present, then the environment.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Failed to load .env file.", "error", err)
	}

	return Config{
		ProjectID:     envStr("PROJECT_ID", ""),
		Bucket:        envStr("CLOUD_STORAGE_BUCKET", ""),
		LogLevel:      envStr("LOG_LEVEL", "info"),
		WorkspaceRoot: envStr("WORKSPACE_ROOT", ""),

		RasterDPI:       envInt("RASTER_DPI", 200),
		ImagesPerFolder: envInt("IMAGES_PER_FOLDER", 10),
		JPEGQuality:     envInt("JPEG_QUALITY", 90),

		PandocPath:          envStr("PANDOC_PATH", "pandoc"),
		DocumentAILocation:  envStr("DOCUMENTAI_LOCATION", "us"),
		DocumentAIProcessor: envStr("DOCUMENTAI_PROCESSOR_ID", ""),

		ExtractProvider: strings.ToLower(envStr("EXTRACT_PROVIDER", "anthropic")),
		VertexRegion:    envStr("VERTEX_AI_REGION", "us-central1"),
		VertexModel:     envStr("VERTEX_AI_MODEL", "gemini-1.5-pro"),
		AnthropicModel:  envStr("ANTHROPIC_MODEL", "claude-3-5-sonnet-20240620"),
		AnthropicAPIKey: envStr("ANTHROPIC_API_KEY", ""),

		OpenAIModel:   envStr("OPENAI_MODEL", "gpt-3.5-turbo"),
		OpenAIBaseURL: envStr("OPENAI_BASE_URL", ""),

		LedgerEnabled:       envBool("LEDGER_ENABLED", true),
		FirestoreCollection: envStr("FIRESTORE_COLLECTION", "pipeline_jobs"),
		NatsURL:             envStr("NATS_URL", ""),
		NatsToken:           envStr("NATS_TOKEN", ""),

		NotifyFrom:              envStr("NOTIFY_FROM", ""),
		NotifySubject:           envStr("NOTIFY_SUBJECT", "Your processed attachment"),
		NotifyFallbackRecipient: envStr("NOTIFY_FALLBACK_RECIPIENT", ""),

		Port:             envInt("PORT", 8080),
		SMTPServer:       envStr("SMTP_SERVER", ""),
		SMTPPort:         envInt("SMTP_PORT", 587),
		SMTPUsername:     envStr("SMTP_USERNAME", ""),
		SMTPPassword:     envStr("SMTP_PASSWORD", ""),
		SenderEmail:      envStr("SENDER_EMAIL", ""),
		RecipientEmail:   envStr("RECIPIENT_EMAIL", ""),
		SessionBackend:   strings.ToLower(envStr("SESSION_BACKEND", "memory")),
		SessionIdleTTL:   envDuration("SESSION_IDLE_TTL", 30*time.Minute),
		SessionMax:       envInt("SESSION_MAX", 1000),
		RedisAddr:        envStr("REDIS_ADDR", ""),
		RedisPassword:    envStr("REDIS_PASSWORD", ""),
		Sequencer:        strings.ToLower(envStr("SEQUENCER", "scan")),
		IntakeCollection: envStr("INTAKE_COLLECTION", "transcript"),
	}
}

// RequireStorage checks the settings every storage-triggered stage needs.
func (c Config) RequireStorage() error {
	if c.ProjectID == "" {
		return fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	if c.Bucket == "" {
		return fmt.Errorf("CLOUD_STORAGE_BUCKET environment variable must be set")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
