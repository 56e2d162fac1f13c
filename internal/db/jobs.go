package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// NextPendingJob returns the oldest pending job, or nil when there is none.
func (db *DB) NextPendingJob(ctx context.Context) (*Job, error) {
	var job Job
	err := db.pool.QueryRow(ctx,
		`SELECT id, COALESCE(full_name, ''), COALESCE(email, ''), status, created_at
		 FROM users_pending
		 WHERE status = $1
		 ORDER BY created_at ASC
		 LIMIT 1`,
		JobStatusPending,
	).Scan(&job.ID, &job.FullName, &job.Email, &job.Status, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch pending job: %w", err)
	}
	return &job, nil
}

// UpdateJobStatus sets the status of a job. Only terminal statuses are accepted.
func (db *DB) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string) error {
	if !IsTerminalStatus(status) {
		return fmt.Errorf("invalid job status %q", status)
	}
	result, err := db.pool.Exec(ctx,
		`UPDATE users_pending SET status = $1 WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("job not found: %s", id)
	}
	return nil
}

// CreatePendingJob inserts a new pending job and returns it.
func (db *DB) CreatePendingJob(ctx context.Context, fullName, email string) (*Job, error) {
	job := Job{FullName: fullName, Email: email}
	err := db.pool.QueryRow(ctx,
		`INSERT INTO users_pending (full_name, email, status)
		 VALUES ($1, $2, $3)
		 RETURNING id, status, created_at`,
		fullName, email, JobStatusPending,
	).Scan(&job.ID, &job.Status, &job.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending job: %w", err)
	}
	return &job, nil
}

// GetJob retrieves a job by ID, or nil when it does not exist.
func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := db.pool.QueryRow(ctx,
		`SELECT id, COALESCE(full_name, ''), COALESCE(email, ''), status, created_at
		 FROM users_pending WHERE id = $1`,
		id,
	).Scan(&job.ID, &job.FullName, &job.Email, &job.Status, &job.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}
