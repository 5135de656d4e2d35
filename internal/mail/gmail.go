package mail

import (
	"context"
	"encoding/base64"
	"fmt"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender sends through the Gmail API as a delegated user.
type GmailSender struct {
	service *gmail.Service
	from    string
}

// NewGmailSender authenticates with a service account key that has
// domain-wide delegation and impersonates from.
func NewGmailSender(ctx context.Context, serviceAccountJSON []byte, from string) (*GmailSender, error) {
	cfg, err := google.JWTConfigFromJSON(serviceAccountJSON, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parse gmail service account: %w", err)
	}
	cfg.Subject = from
	svc, err := gmail.NewService(ctx, option.WithTokenSource(cfg.TokenSource(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create gmail service: %w", err)
	}
	return NewGmailSenderWithService(svc, from), nil
}

// NewGmailSenderWithService wraps an existing Gmail service.
func NewGmailSenderWithService(svc *gmail.Service, from string) *GmailSender {
	return &GmailSender{service: svc, from: from}
}

func (s *GmailSender) Send(ctx context.Context, m Message) (string, error) {
	if m.From == "" {
		m.From = s.from
	}
	raw, err := Build(m)
	if err != nil {
		return "", err
	}
	sent, err := s.service.Users.Messages.Send("me", &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("gmail send to %s: %w", m.To, err)
	}
	return sent.Id, nil
}
