// Package ledger records per-job stage outcomes in Firestore. Nothing in the
// pipeline reads the ledger back; it exists for operators.
package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/Lllllllleong/attachmentflow/internal/models"
)

// Entry is one stage outcome for one job.
type Entry struct {
	JobID        string
	Stage        string
	Object       string
	Status       string
	Outputs      []string
	ErrorDetails string
}

// Recorder persists entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Nop discards every entry.
type Nop struct{}

func (Nop) Record(context.Context, Entry) error { return nil }

// FirestoreRecorder writes one document per job with a stages.<stage> map.
type FirestoreRecorder struct {
	client     *firestore.Client
	collection string
	now        func() time.Time
}

func NewFirestoreRecorder(client *firestore.Client, collection string) *FirestoreRecorder {
	if collection == "" {
		collection = "pipeline_jobs"
	}
	return &FirestoreRecorder{client: client, collection: collection, now: time.Now}
}

// Record merges the stage outcome into the job document, creating it on first use.
func (r *FirestoreRecorder) Record(ctx context.Context, e Entry) error {
	jobID := e.JobID
	if jobID == "" {
		jobID = "unattributed"
	}
	now := r.now().UTC()
	data := map[string]any{
		"jobId":     jobID,
		"updatedAt": now,
		"stages": map[string]any{
			e.Stage: models.StageRecord{
				Status:       e.Status,
				Object:       e.Object,
				Outputs:      e.Outputs,
				ErrorDetails: e.ErrorDetails,
				UpdatedAt:    now,
			},
		},
	}
	if _, err := r.client.Collection(r.collection).Doc(jobID).Set(ctx, data, firestore.MergeAll); err != nil {
		return fmt.Errorf("failed to record %s for job %s: %w", e.Status, jobID, err)
	}
	return nil
}
