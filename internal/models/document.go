package models

import "time"

// GCSEvent is the data payload of a storage object-finalized CloudEvent.
type GCSEvent struct {
	Bucket      string `json:"bucket"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        string `json:"size,omitempty"`
}

// Job status values written to the ledger.
const (
	StatusReceived  = "RECEIVED"
	StatusPublished = "PUBLISHED"
	StatusFailed    = "FAILED"
)

// StageRecord is one stage's latest outcome for a job, stored under
// stages.<stage> of the job document.
type StageRecord struct {
	Status       string    `firestore:"status"`
	Object       string    `firestore:"object"`
	Outputs      []string  `firestore:"outputs,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

// TranscriptTurn is one persisted chat turn.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
