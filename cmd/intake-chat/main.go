// Command intake-chat serves the patient intake conversation over HTTP and
// WebSocket and files finished transcripts in the pipeline bucket.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Lllllllleong/attachmentflow/internal/anthropic"
	"github.com/Lllllllleong/attachmentflow/internal/api"
	"github.com/Lllllllleong/attachmentflow/internal/chat"
	"github.com/Lllllllleong/attachmentflow/internal/config"
	"github.com/Lllllllleong/attachmentflow/internal/gcp"
	"github.com/Lllllllleong/attachmentflow/internal/logging"
	"github.com/Lllllllleong/attachmentflow/internal/mail"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel)

	if err := run(cfg); err != nil {
		slog.Error("intake-chat failed", "error", err)
		os.Exit(1)
	}
}

// run wires the server from cfg and serves until a signal arrives or the
// listener fails. Every deferred cleanup runs before it returns.
func run(cfg config.Config) error {
	slog.Info("intake-chat starting", "port", cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Storage
	if cfg.Bucket == "" {
		return errors.New("CLOUD_STORAGE_BUCKET is required")
	}
	if cfg.AnthropicAPIKey == "" {
		return errors.New("ANTHROPIC_API_KEY is required")
	}
	store, err := gcp.NewGCSStore(ctx, cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to create storage client: %w", err)
	}
	defer store.Close()

	// Sessions
	var sessions chat.Sessions
	switch cfg.SessionBackend {
	case "redis":
		rs, err := chat.NewRedisSessions(chat.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			IdleTTL:  cfg.SessionIdleTTL,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		defer rs.Close()
		sessions = rs
		slog.Info("redis sessions ready", "addr", cfg.RedisAddr)
	default:
		ms := chat.NewMemorySessions(cfg.SessionMax, cfg.SessionIdleTTL)
		go ms.RunJanitor(ctx, time.Minute)
		sessions = ms
	}

	// Firestore backs the transcript counter and the intake webhook.
	var intake api.IntakeStore
	var sequencer chat.Sequencer = chat.NewScanSequencer(store)
	if cfg.ProjectID != "" {
		fs, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID)
		if err != nil {
			return fmt.Errorf("failed to create firestore client: %w", err)
		}
		defer fs.Close()
		intake = api.NewFirestoreIntakeStore(fs, cfg.IntakeCollection)
		if cfg.Sequencer == "firestore" {
			sequencer = chat.NewFirestoreSequencer(fs, chat.NewScanSequencer(store))
		}
	} else if cfg.Sequencer == "firestore" {
		slog.Warn("SEQUENCER=firestore needs PROJECT_ID. Falling back to bucket scan.")
	}

	// Anthropic client
	llm := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.AnthropicModel)
	slog.Info("anthropic client ready", "model", cfg.AnthropicModel)

	// Mail is optional; without it analyses are only logged.
	var mailer mail.Sender
	if cfg.SMTPServer != "" {
		mailer = mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPServer,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
		})
	} else {
		slog.Warn("SMTP not configured. Transcript analyses will not be emailed.")
	}

	svc := chat.NewService(chat.ServiceConfig{
		Sessions:  sessions,
		Sequencer: sequencer,
		Store:     store,
		Chat:      llm.WithTemperature(0.3),
		Analysis:  llm,
		Mailer:    mailer,
		From:      cfg.SenderEmail,
		To:        cfg.RecipientEmail,
	})

	srv := api.NewServer(cfg.Port, svc, intake)
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	slog.Info("intake-chat ready", "port", cfg.Port, "sessions", cfg.SessionBackend)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error
	select {
	case <-sigCh:
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("HTTP server error: %w", err)
		}
	}
	slog.Info("shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown error", "error", err)
	}
	svc.Wait()
	slog.Info("intake-chat stopped")
	return runErr
}
