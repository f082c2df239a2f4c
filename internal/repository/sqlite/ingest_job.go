package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/cloo-solutions/docchat/internal/domain"
)

// DefaultClaimLimit bounds how many jobs one poll claims.
const DefaultClaimLimit = 10

const ingestJobColumns = `id, document_id, status, retries, error, created_at, processed_at`

// IngestJobRepository persists the ingest queue.
type IngestJobRepository struct {
	db querier
}

func (r *IngestJobRepository) Create(ctx context.Context, job *domain.IngestJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO ingest_jobs (`+ingestJobColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.DocumentID, string(job.Status), job.Retries, nullString(job.Error),
		job.CreatedAt.UTC(), nullTime(job.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting ingest job: %w", err)
	}
	return nil
}

func (r *IngestJobRepository) GetByID(ctx context.Context, id string) (*domain.IngestJob, error) {
	job, err := scanIngestJob(r.db.QueryRowContext(ctx,
		`SELECT `+ingestJobColumns+` FROM ingest_jobs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrIngestJobNotFound
		}
		return nil, fmt.Errorf("getting ingest job: %w", err)
	}
	return job, nil
}

// ClaimPending moves up to limit pending jobs to processing and returns
// them, oldest first. The single UPDATE statement makes the claim atomic.
func (r *IngestJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IngestJob, error) {
	if limit <= 0 {
		limit = DefaultClaimLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`UPDATE ingest_jobs
		 SET status = ?, processed_at = NULL
		 WHERE id IN (
			 SELECT id FROM ingest_jobs
			 WHERE status = ?
			 ORDER BY created_at ASC
			 LIMIT ?
		 )
		 RETURNING id`,
		string(domain.IngestJobStatusProcessing), string(domain.IngestJobStatusPending), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claiming ingest jobs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	jobs := make([]*domain.IngestJob, 0, len(ids))
	for _, id := range ids {
		job, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].CreatedAt.Before(jobs[j].CreatedAt) })
	return jobs, nil
}

func (r *IngestJobRepository) UpdateStatus(ctx context.Context, id string, status domain.IngestJobStatus, errMsg string) error {
	var processedAt *time.Time
	if status == domain.IngestJobStatusCompleted || status == domain.IngestJobStatusFailed {
		now := time.Now().UTC()
		processedAt = &now
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ?, error = ?, processed_at = ? WHERE id = ?`,
		string(status), nullString(errMsg), nullTime(processedAt), id,
	)
	if err != nil {
		return fmt.Errorf("updating ingest job: %w", err)
	}
	return requireRow(res, domain.ErrIngestJobNotFound)
}

func (r *IngestJobRepository) IncrementRetries(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE ingest_jobs SET retries = retries + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing retries: %w", err)
	}
	return requireRow(res, domain.ErrIngestJobNotFound)
}

// RequeueStale returns every job left in processing to the pending queue.
func (r *IngestJobRepository) RequeueStale(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE ingest_jobs SET status = ? WHERE status = ?`,
		string(domain.IngestJobStatusPending), string(domain.IngestJobStatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("requeueing stale jobs: %w", err)
	}
	return res.RowsAffected()
}

func (r *IngestJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	return r.ClaimPending(ctx, DefaultClaimLimit)
}

func (r *IngestJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error {
	return r.UpdateStatus(ctx, jobID, status, errMsg)
}

func scanIngestJob(row rowScanner) (*domain.IngestJob, error) {
	var job domain.IngestJob
	var status string
	var errMsg sql.NullString
	var processedAt sql.NullTime
	if err := row.Scan(&job.ID, &job.DocumentID, &status, &job.Retries, &errMsg, &job.CreatedAt, &processedAt); err != nil {
		return nil, err
	}
	job.Status = domain.IngestJobStatus(status)
	job.Error = errMsg.String
	if processedAt.Valid {
		t := processedAt.Time
		job.ProcessedAt = &t
	}
	return &job, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
