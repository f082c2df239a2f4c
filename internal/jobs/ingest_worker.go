package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/cloo-solutions/docchat/internal/telemetry"
	"go.uber.org/zap"
)

const (
	// MaxRetries is the maximum number of retries for a failed job
	MaxRetries = 3
)

// IngestJobRepository defines the interface for ingest job persistence
type IngestJobRepository interface {
	// GetPendingJobs retrieves and claims pending ingest jobs
	GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error)

	// UpdateJobStatus updates the status of an ingest job
	UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error

	// IncrementRetries increments the retry count for a job
	IncrementRetries(ctx context.Context, jobID string) error
}

// IngestService runs one document through the pipeline. Ingest leaves the
// document status alone on failure; the worker calls MarkFailed once the job
// has no retries left.
type IngestService interface {
	Ingest(ctx context.Context, documentID string) error
	MarkFailed(ctx context.Context, documentID, reason string) error
}

// IngestWorker processes ingest jobs
type IngestWorker struct {
	repo    IngestJobRepository
	service IngestService
	logger  *zap.Logger
}

// NewIngestWorker creates a new IngestWorker instance
func NewIngestWorker(repo IngestJobRepository, service IngestService, logger *zap.Logger) *IngestWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestWorker{
		repo:    repo,
		service: service,
		logger:  logger,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *IngestWorker) ProcessJobs(ctx context.Context) error {
	_, err := w.ProcessPending(ctx)
	return err
}

// ProcessPending claims one batch of pending jobs, runs them and reports
// how many were claimed.
func (w *IngestWorker) ProcessPending(ctx context.Context) (int, error) {
	jobs, err := w.repo.GetPendingJobs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch pending jobs: %w", err)
	}

	if len(jobs) == 0 {
		return 0, nil
	}

	w.logger.Info("processing pending ingest jobs", zap.Int("count", len(jobs)))

	// Jobs run one at a time; each may hold a whole document in memory.
	for _, job := range jobs {
		if err := w.processJob(ctx, job); err != nil {
			w.logger.Error("error processing job", zap.String("job_id", job.ID), zap.Error(err))
		}
	}

	return len(jobs), nil
}

func (w *IngestWorker) processJob(ctx context.Context, job *domain.IngestJob) error {
	if job.DocumentID == "" {
		return fmt.Errorf("job %s has no document_id", job.ID)
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestWorker.processJob", telemetry.SpanAttributes{
		DocumentID: job.DocumentID,
		JobID:      job.ID,
		Operation:  "ingest",
	})
	defer span.End()

	log := w.logger.With(zap.String("job_id", job.ID), zap.String("document_id", job.DocumentID))
	log.Info("processing ingest job")

	if err := w.service.Ingest(ctx, job.DocumentID); err != nil {
		span.SetError(err)
		return w.handleJobFailure(ctx, job, err, log)
	}

	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusCompleted, ""); err != nil {
		return fmt.Errorf("failed to update job status to completed: %w", err)
	}

	log.Info("ingest job completed")
	return nil
}

// handleJobFailure handles a failed job with retry logic
func (w *IngestWorker) handleJobFailure(ctx context.Context, job *domain.IngestJob, jobErr error, log *zap.Logger) error {
	log.Warn("ingest job failed", zap.Int32("retries", job.Retries), zap.Error(jobErr))

	// nothing left to ingest or to mark
	if errors.Is(jobErr, domain.ErrDocumentNotFound) {
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusFailed, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		return nil
	}

	if err := w.repo.IncrementRetries(ctx, job.ID); err != nil {
		return fmt.Errorf("failed to increment retries: %w", err)
	}

	if job.Retries+1 >= MaxRetries {
		log.Error("ingest job exceeded max retries, marking as failed", zap.Int("max_retries", MaxRetries))
		errMsg := fmt.Sprintf("max retries exceeded: %v", jobErr)
		telemetry.CaptureError(ctx, fmt.Errorf("ingest job %s: %s", job.ID, errMsg))
		if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusFailed, errMsg); err != nil {
			return fmt.Errorf("failed to update job status to failed: %w", err)
		}
		if err := w.service.MarkFailed(context.WithoutCancel(ctx), job.DocumentID, jobErr.Error()); err != nil {
			return fmt.Errorf("failed to mark document as failed: %w", err)
		}
		return nil
	}

	// The document stays in processing until the last attempt so it cannot
	// be reprocessed while a retry is queued.
	log.Info("ingest job will be retried", zap.Int32("attempt", job.Retries+1), zap.Int("max_retries", MaxRetries))
	telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("job %s scheduled for retry %d", job.ID, job.Retries+1))
	errMsg := fmt.Sprintf("retry %d: %v", job.Retries+1, jobErr)
	if err := w.repo.UpdateJobStatus(ctx, job.ID, domain.IngestJobStatusPending, errMsg); err != nil {
		return fmt.Errorf("failed to reset job status to pending: %w", err)
	}

	return nil
}
