package domain

import (
	"fmt"
	"time"
)

// IngestJobStatus represents the status of an ingest job
type IngestJobStatus string

const (
	IngestJobStatusPending    IngestJobStatus = "pending"
	IngestJobStatusProcessing IngestJobStatus = "processing"
	IngestJobStatusCompleted  IngestJobStatus = "completed"
	IngestJobStatusFailed     IngestJobStatus = "failed"
)

// IngestJob is a queued request to run a document through the pipeline.
// Its ID doubles as the correlation id carried through logs and traces.
type IngestJob struct {
	ID          string
	DocumentID  string
	Status      IngestJobStatus
	Retries     int32
	Error       string
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// NewIngestJob creates a new pending IngestJob
func NewIngestJob(id, documentID string, createdAt time.Time) *IngestJob {
	return &IngestJob{
		ID:         id,
		DocumentID: documentID,
		Status:     IngestJobStatusPending,
		CreatedAt:  createdAt,
	}
}

// ValidateIngestJob validates an IngestJob instance
func ValidateIngestJob(j *IngestJob) error {
	if j == nil {
		return fmt.Errorf("ingest job cannot be nil")
	}

	if j.ID == "" {
		return fmt.Errorf("ingest job ID is required")
	}

	if j.DocumentID == "" {
		return fmt.Errorf("ingest job DocumentID is required")
	}

	if !isValidIngestJobStatus(j.Status) {
		return fmt.Errorf("ingest job Status is invalid: %s", j.Status)
	}

	if j.Retries < 0 {
		return fmt.Errorf("ingest job Retries cannot be negative")
	}

	return nil
}

func isValidIngestJobStatus(s IngestJobStatus) bool {
	switch s {
	case IngestJobStatusPending, IngestJobStatusProcessing,
		IngestJobStatusCompleted, IngestJobStatusFailed:
		return true
	}
	return false
}
