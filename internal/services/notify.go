package services

import (
	"context"
	"os"

	"github.com/Lllllllleong/attachmentflow/internal/mail"
	"github.com/Lllllllleong/attachmentflow/internal/models"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

// NotifyConfig holds the outgoing message settings.
type NotifyConfig struct {
	From              string
	Subject           string
	FallbackRecipient string
}

// NotifyFunction emails a reviewed HTML summary back to the sender named
// in its object key. It publishes nothing.
type NotifyFunction struct {
	runner *Runner
	sender mail.Sender
	config NotifyConfig
}

func NewNotifyFunction(runner *Runner, sender mail.Sender, cfg NotifyConfig) *NotifyFunction {
	if cfg.Subject == "" {
		cfg.Subject = "Your processed attachment"
	}
	return &NotifyFunction{runner: runner, sender: sender, config: cfg}
}

func (f *NotifyFunction) Def() StageDef {
	return StageDef{Stage: pipeline.StageNotify, Body: f.notify}
}

// Process handles one storage event.
func (f *NotifyFunction) Process(ctx context.Context, e models.GCSEvent) error {
	return f.runner.Run(ctx, f.Def(), e)
}

// recipient picks the address embedded in the key, then the fallback.
func (f *NotifyFunction) recipient(object string) string {
	if addr, ok := pipeline.RecipientFromKey(object); ok {
		return addr
	}
	return f.config.FallbackRecipient
}

func (f *NotifyFunction) notify(ctx context.Context, inv *Invocation) ([]Output, error) {
	to := f.recipient(inv.Object)
	if to == "" {
		inv.Log.Warn("No recipient address in object name and no fallback configured. Skipping email.")
		return nil, nil
	}
	html, err := os.ReadFile(inv.Inputs[0].Path)
	if err != nil {
		return nil, Wrap(ErrFetch, inv.Stage.String(), "read staged input", err)
	}

	id, err := f.sender.Send(ctx, mail.Message{
		From:     f.config.From,
		To:       to,
		Subject:  f.config.Subject,
		HTMLBody: string(html),
	})
	if err != nil {
		inv.Log.Error("Failed to send email.", "to", to, "error", Wrap(ErrSecondary, inv.Stage.String(), "send email", err))
		return nil, nil
	}
	inv.Log.Info("Email sent.", "to", to, "messageId", id)
	return nil, nil
}
