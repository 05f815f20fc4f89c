package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/ap-engine/ap"
)

// =============================================================================
// JOBS (ap.JobStore)
// =============================================================================

const jobColumns = "id, status, total_files, processed_files, summary_json, created_at, completed_at"

func (s *Store) CreateJob(ctx context.Context, job *ap.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO jobs (id, status, total_files, processed_files, created_at) VALUES (?, ?, ?, ?, ?)",
		job.ID, job.Status, job.TotalFiles, job.ProcessedFiles, formatTime(job.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*ap.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, err := scanJob(s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &ap.NotFoundError{Entity: "job", Key: id}
	}
	return job, err
}

func (s *Store) UpdateJobProgress(ctx context.Context, id string, processed int, status ap.JobStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET processed_files = MAX(processed_files, ?), status = ? WHERE id = ?", processed, status, id)
	if err != nil {
		return fmt.Errorf("failed to update job progress: %w", err)
	}
	return nil
}

func (s *Store) FinishJob(ctx context.Context, id string, status ap.JobStatus, summary *ap.JobSummary, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := marshalJSON(summary)
	if err != nil {
		return fmt.Errorf("failed to encode job summary: %w", err)
	}
	processed := 0
	if summary != nil {
		processed = summary.TotalFiles
	}
	_, err = s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, summary_json = ?, processed_files = MAX(processed_files, ?), completed_at = ? WHERE id = ?",
		status, encoded, processed, formatTime(at), id)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, limit int) ([]ap.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+jobColumns+" FROM jobs ORDER BY created_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []ap.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*ap.Job, error) {
	var (
		job         ap.Job
		summary     sql.NullString
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&job.ID, &job.Status, &job.TotalFiles, &job.ProcessedFiles, &summary, &createdAt, &completedAt); err != nil {
		return nil, err
	}
	if summary.Valid && summary.String != "null" {
		job.Summary = &ap.JobSummary{}
		if err := unmarshalJSON(summary, job.Summary); err != nil {
			return nil, fmt.Errorf("failed to decode job summary: %w", err)
		}
	}
	job.CreatedAt = parseTime(createdAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}
