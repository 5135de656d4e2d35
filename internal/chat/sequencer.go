package chat

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/attachmentflow/internal/blob"
	"github.com/Lllllllleong/attachmentflow/internal/pipeline"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Sequencer hands out transcript numbers.
type Sequencer interface {
	Next(ctx context.Context) (int, error)
}

// ScanSequencer derives the next number from the stored transcript names:
// the highest existing number plus one, or 1 for an empty store.
//
// It is not atomic. Two calls that observe the same listing return the same
// number; the transcript writer's put-if-absent is what keeps the loser from
// overwriting the winner.
type ScanSequencer struct {
	store blob.Store
}

func NewScanSequencer(store blob.Store) *ScanSequencer {
	return &ScanSequencer{store: store}
}

func (s *ScanSequencer) Next(ctx context.Context) (int, error) {
	highest, err := s.highest(ctx)
	if err != nil {
		return 0, err
	}
	return highest + 1, nil
}

func (s *ScanSequencer) highest(ctx context.Context) (int, error) {
	names, err := s.store.List(ctx, pipeline.TranscriptPrefix())
	if err != nil {
		return 0, fmt.Errorf("failed to list transcripts: %w", err)
	}
	highest := 0
	for _, name := range names {
		if n, ok := pipeline.ParseTranscriptNumber(name); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// FirestoreSequencer reserves numbers by incrementing a counter document
// inside a transaction. The first reservation seeds the counter from the
// transcripts already in the store.
type FirestoreSequencer struct {
	client *firestore.Client
	ref    *firestore.DocumentRef
	seed   *ScanSequencer
}

const (
	counterCollection = "counters"
	counterDocument   = "transcripts"
)

func NewFirestoreSequencer(client *firestore.Client, seed *ScanSequencer) *FirestoreSequencer {
	return &FirestoreSequencer{
		client: client,
		ref:    client.Collection(counterCollection).Doc(counterDocument),
		seed:   seed,
	}
}

func (f *FirestoreSequencer) Next(ctx context.Context) (int, error) {
	var next int
	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		last, err := f.last(ctx, tx)
		if err != nil {
			return err
		}
		next = last + 1
		return tx.Set(f.ref, map[string]any{
			"last":      next,
			"updatedAt": time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, fmt.Errorf("failed to reserve transcript number: %w", err)
	}
	return next, nil
}

func (f *FirestoreSequencer) last(ctx context.Context, tx *firestore.Transaction) (int, error) {
	snap, err := tx.Get(f.ref)
	if status.Code(err) == codes.NotFound {
		if f.seed == nil {
			return 0, nil
		}
		return f.seed.highest(ctx)
	}
	if err != nil {
		return 0, err
	}
	v, err := snap.DataAt("last")
	if err != nil {
		return 0, err
	}
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("counter field has type %T", v)
	}
	return int(n), nil
}
