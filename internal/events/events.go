// Package events announces stage outcomes on NATS.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to every outcome subject:
// attachmentflow.stage.<stage>.<outcome>.
const SubjectPrefix = "attachmentflow.stage"

// flushTimeout bounds how long Publish waits for the server to acknowledge.
const flushTimeout = 2 * time.Second

// ErrNotConnected is returned by Publish while the connection is down.
var ErrNotConnected = errors.New("nats connection is not established")

// Outcome values.
const (
	OutcomePublished = "published"
	OutcomeFailed    = "failed"
)

// StageEvent is the payload of an outcome message.
type StageEvent struct {
	Stage     string    `json:"stage"`
	Outcome   string    `json:"outcome"`
	Object    string    `json:"object"`
	JobID     string    `json:"job_id,omitempty"`
	Outputs   []string  `json:"outputs,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Subject is the NATS subject the event is published on.
func (e StageEvent) Subject() string {
	return fmt.Sprintf("%s.%s.%s", SubjectPrefix, e.Stage, e.Outcome)
}

// Publisher sends stage events.
type Publisher interface {
	Publish(ctx context.Context, e StageEvent) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, StageEvent) error { return nil }

// NATSPublisher publishes JSON events on a NATS connection.
type NATSPublisher struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSPublisher connects to url. An unreachable server is an error here
// rather than a background retry, so callers can run without events.
func NewNATSPublisher(url, token string, logger *slog.Logger) (*NATSPublisher, error) {
	return connect(url, token, logger)
}

func connect(url, token string, logger *slog.Logger, extra ...nats.Option) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name("attachmentflow"),
		nats.Timeout(2 * time.Second),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected.", "error", err)
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info("NATS reconnected.")
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	opts = append(opts, extra...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: nc, logger: logger}, nil
}

// Publish marshals e and publishes it, then flushes so short-lived function
// instances do not drop the message. It never waits longer than
// flushTimeout, and fails at once while the connection is down.
func (p *NATSPublisher) Publish(ctx context.Context, e StageEvent) error {
	if !p.conn.IsConnected() {
		return fmt.Errorf("publish %s: %w", e.Subject(), ErrNotConnected)
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	if err := p.conn.Publish(e.Subject(), payload); err != nil {
		return fmt.Errorf("publish %s: %w", e.Subject(), err)
	}
	flushCtx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := p.conn.FlushWithContext(flushCtx); err != nil {
		return fmt.Errorf("flush %s: %w", e.Subject(), err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	p.conn.Close()
}
