package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Lllllllleong/attachmentflow/internal/anthropic"
	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"github.com/Lllllllleong/attachmentflow/internal/mail"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
)

const (
	ChatMaxTokens     = 8192
	AnalysisMaxTokens = 2000

	transcriptAttempts = 5
)

// ErrEmptyMessage is returned for a message with no text.
var ErrEmptyMessage = errors.New("message is empty")

// Completer answers a conversation under a system prompt.
type Completer interface {
	Complete(ctx context.Context, system string, messages []anthropic.Message, maxTokens int) (string, error)
}

// ServiceConfig holds the collaborators of the intake service.
type ServiceConfig struct {
	Sessions  Sessions
	Sequencer Sequencer
	Store     blob.Store
	// Chat answers patient messages; Analysis reviews finished transcripts.
	Chat     Completer
	Analysis Completer
	Mailer   mail.Sender

	SystemPrompt string
	From         string
	To           string
}

// Service runs intake conversations and files their transcripts.
type Service struct {
	cfg     ServiceConfig
	reviews sync.WaitGroup
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = IntakeSystemPrompt
	}
	if cfg.Analysis == nil {
		cfg.Analysis = cfg.Chat
	}
	if cfg.Sequencer == nil {
		cfg.Sequencer = NewScanSequencer(cfg.Store)
	}
	return &Service{cfg: cfg}
}

// Connect opens a session and returns its id.
func (s *Service) Connect(ctx context.Context) (string, error) {
	sess, err := s.cfg.Sessions.Create(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	slog.Info("Chat session opened.", "sessionId", sess.ID)
	return sess.ID, nil
}

// Message records the user's turn, asks the model for a reply over the
// alternating history, and records the reply. A failed completion is
// answered with ApologyReply rather than an error.
func (s *Service) Message(ctx context.Context, sessionID, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrEmptyMessage
	}
	logCtx := slog.With("sessionId", sessionID)

	sess, err := s.cfg.Sessions.Append(ctx, sessionID, Turn{Role: RoleUser, Content: text})
	if err != nil {
		return "", fmt.Errorf("failed to record message: %w", err)
	}

	history := AlternatingTurns(sess.Turns)
	messages := make([]anthropic.Message, 0, len(history))
	for _, t := range history {
		messages = append(messages, anthropic.Message{Role: t.Role, Content: t.Content})
	}

	reply, err := s.cfg.Chat.Complete(ctx, s.cfg.SystemPrompt, messages, ChatMaxTokens)
	if err != nil {
		logCtx.Error("Error calling completion API.", "error", err)
		reply = ApologyReply
	}
	if _, err := s.cfg.Sessions.Append(ctx, sessionID, Turn{Role: RoleAssistant, Content: reply}); err != nil {
		return "", fmt.Errorf("failed to record reply: %w", err)
	}
	return reply, nil
}

// EndChat persists the session's transcript, drops the session and
// returns the transcript number. Analysis and email run afterwards in the
// background; Wait blocks until they finish.
func (s *Service) EndChat(ctx context.Context, sessionID string) (int, error) {
	sess, err := s.cfg.Sessions.Get(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	turns := sess.Turns
	if turns == nil {
		turns = []Turn{}
	}
	transcript, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("failed to encode transcript: %w", err)
	}

	n, err := s.persist(ctx, transcript)
	if err != nil {
		return 0, err
	}
	if err := s.cfg.Sessions.Delete(ctx, sessionID); err != nil {
		slog.Warn("Failed to delete ended session.", "sessionId", sessionID, "error", err)
	}
	slog.Info("Chat ended. Transcript saved.", "sessionId", sessionID, "transcriptNumber", n)

	reviewCtx := context.WithoutCancel(ctx)
	s.reviews.Add(1)
	go func() {
		defer s.reviews.Done()
		s.Review(reviewCtx, string(transcript), n)
	}()
	return n, nil
}

// Wait blocks until every background review has finished.
func (s *Service) Wait() {
	s.reviews.Wait()
}

// persist writes the transcript under the next free number. When another
// writer already took the number, it moves on to a higher one.
func (s *Service) persist(ctx context.Context, transcript []byte) (int, error) {
	last := 0
	for range transcriptAttempts {
		n, err := s.cfg.Sequencer.Next(ctx)
		if err != nil {
			return 0, err
		}
		if n <= last {
			n = last + 1
		}
		key := pipeline.TranscriptKey(n)
		err = s.cfg.Store.PutIfAbsent(ctx, key, bytes.NewReader(transcript), "application/json")
		if errors.Is(err, blob.ErrAlreadyExists) {
			slog.Warn("Transcript number already taken. Retrying.", "transcript", key)
			last = n
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to save transcript %s: %w", key, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("failed to save transcript: no free number after %d attempts", transcriptAttempts)
}

// Review analyses a transcript and emails the result. Failures here never
// affect the stored transcript; it returns the text that was (or would have
// been) sent.
func (s *Service) Review(ctx context.Context, transcript string, n int) string {
	logCtx := slog.With("transcriptNumber", n)

	analysis, err := s.cfg.Analysis.Complete(ctx, AnalysisSystemPrompt, []anthropic.Message{
		{Role: RoleUser, Content: analysisUserPrefix + transcript},
	}, AnalysisMaxTokens)
	if err != nil {
		logCtx.Error("Error analyzing transcript.", "error", err)
		analysis = DegradedAnalysis
	}

	if s.cfg.Mailer == nil || s.cfg.To == "" {
		logCtx.Warn("No mail transport or recipient configured. Analysis not emailed.")
		return analysis
	}
	id, err := s.cfg.Mailer.Send(ctx, mail.Message{
		From:     s.cfg.From,
		To:       s.cfg.To,
		Subject:  fmt.Sprintf("Patient Intake Analysis - Transcript %d", n),
		TextBody: "Please find the patient intake analysis attached.",
		Attachments: []mail.Attachment{{
			Filename:    fmt.Sprintf("analysis_%d.txt", n),
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(analysis),
		}},
	})
	if err != nil {
		logCtx.Error("Error sending email.", "error", err)
		return analysis
	}
	logCtx.Info("Analysis email sent.", "messageId", id)
	return analysis
}
