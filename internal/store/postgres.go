package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/tasks"
)

// PostgresStore provides methods to store and retrieve users and jobs
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new storage instance
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db: db,
	}
}

const userColumns = `telegram_id, COALESCE(x_handle, ''), COALESCE(fc_id, 0), created_at, updated_at`

const jobColumns = `job_id, user_id, task_type, status, result_payload, created_at, completed_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.XHandle, &u.FarcasterID, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var (
		job         Job
		kind        string
		status      string
		result      []byte
		completedAt sql.NullTime
	)
	if err := row.Scan(&job.ID, &job.UserID, &kind, &status, &result, &job.CreatedAt, &completedAt); err != nil {
		return nil, err
	}
	k, err := tasks.Parse(kind)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}
	job.Kind = k
	job.Status = JobStatus(status)
	if len(result) > 0 {
		job.Result = json.RawMessage(result)
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return &job, nil
}

// GetOrCreateUser returns the user, inserting an empty record on first contact
func (s *PostgresStore) GetOrCreateUser(ctx context.Context, id int64) (*User, error) {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO users (telegram_id, created_at, updated_at)
	VALUES ($1, NOW(), NOW())
	ON CONFLICT (telegram_id) DO NOTHING
	`, id)
	if err != nil {
		return nil, unavailable("failed to create user", err)
	}

	u, err := scanUser(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, id))
	if err != nil {
		return nil, unavailable("failed to load user", err)
	}
	return u, nil
}

// UpdateUser links the external identities collected during onboarding
func (s *PostgresStore) UpdateUser(ctx context.Context, id int64, handle string, farcasterID int64) (*User, error) {
	query := `
	INSERT INTO users (telegram_id, x_handle, fc_id, created_at, updated_at)
	VALUES ($1, $2, $3, NOW(), NOW())
	ON CONFLICT (telegram_id) DO UPDATE
	SET x_handle = EXCLUDED.x_handle, fc_id = EXCLUDED.fc_id, updated_at = NOW()
	RETURNING ` + userColumns

	u, err := scanUser(s.db.QueryRowContext(ctx, query, id, handle, farcasterID))
	if err != nil {
		return nil, unavailable("failed to update user", err)
	}

	log.Debug().
		Int64("user_id", id).
		Str("x_handle", handle).
		Int64("fc_id", farcasterID).
		Msg("Updated user profile")

	return u, nil
}

// CreateJob inserts a pending job record
func (s *PostgresStore) CreateJob(ctx context.Context, job *Job) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	job.Status = StatusPending

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO jobs (job_id, user_id, task_type, status, created_at)
	VALUES ($1, $2, $3, $4, $5)
	`, job.ID, job.UserID, job.Kind.String(), string(StatusPending), job.CreatedAt)
	if err != nil {
		return unavailable("failed to create job", err)
	}
	return nil
}

// CompleteJob attaches the result and marks the job completed. The status
// guard in the WHERE clause makes concurrent duplicates race on a single row.
func (s *PostgresStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage, at time.Time) (*Job, error) {
	query := `
	UPDATE jobs
	SET status = $2, result_payload = $3, completed_at = $4
	WHERE job_id = $1 AND status = $5
	RETURNING ` + jobColumns

	payload := sql.NullString{String: string(result), Valid: len(result) > 0}
	job, err := scanJob(s.db.QueryRowContext(ctx, query,
		jobID, string(StatusCompleted), payload, at, string(StatusPending)))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, unavailable("failed to complete job", err)
	}

	var status string
	err = s.db.QueryRowContext(ctx, `SELECT status FROM jobs WHERE job_id = $1`, jobID).Scan(&status)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrJobNotFound
	case err != nil:
		return nil, unavailable("failed to look up job", err)
	default:
		return nil, ErrJobCompleted
	}
}

// GetJobOwner returns the user who requested the job
func (s *PostgresStore) GetJobOwner(ctx context.Context, jobID string) (int64, error) {
	var userID int64
	err := s.db.QueryRowContext(ctx, `SELECT user_id FROM jobs WHERE job_id = $1`, jobID).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrJobNotFound
	}
	if err != nil {
		return 0, unavailable("failed to get job owner", err)
	}
	return userID, nil
}

// ListPendingJobs returns jobs still pending that were created before the cutoff, oldest first
func (s *PostgresStore) ListPendingJobs(ctx context.Context, createdBefore time.Time) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT `+jobColumns+`
	FROM jobs
	WHERE status = $1 AND created_at < $2
	ORDER BY created_at ASC
	`, string(StatusPending), createdBefore)
	if err != nil {
		return nil, unavailable("failed to list pending jobs", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, unavailable("failed to scan job", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("failed to iterate jobs", err)
	}
	return jobs, nil
}
