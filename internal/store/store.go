// Package store persists user profiles and job records.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/yanbot/internal/tasks"
)

var (
	// ErrUnavailable wraps every persistence I/O failure.
	ErrUnavailable = errors.New("store unavailable")
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobCompleted is returned when completing a job that is no longer pending.
	ErrJobCompleted = errors.New("job already completed")
)

// JobStatus is the lifecycle state of a job. It only moves forward.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusCompleted JobStatus = "completed"
)

// User is a chat user and the external identities linked during onboarding.
type User struct {
	ID          int64     `json:"telegram_id"`
	XHandle     string    `json:"x_handle"`
	FarcasterID int64     `json:"fc_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Onboarded reports whether the user has linked a Farcaster id.
func (u *User) Onboarded() bool {
	return u != nil && u.FarcasterID != 0
}

// Job is one dispatched analysis request.
type Job struct {
	ID          string          `json:"job_id"`
	UserID      int64           `json:"user_id"`
	Kind        tasks.Kind      `json:"task_type"`
	Status      JobStatus       `json:"status"`
	Result      json.RawMessage `json:"result_payload,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Store is the persistence surface used by the ledger, onboarding and the
// callback gateway.
type Store interface {
	GetOrCreateUser(ctx context.Context, id int64) (*User, error)
	UpdateUser(ctx context.Context, id int64, handle string, farcasterID int64) (*User, error)
	CreateJob(ctx context.Context, job *Job) error
	// CompleteJob moves a pending job to completed in one atomic step.
	CompleteJob(ctx context.Context, jobID string, result json.RawMessage, at time.Time) (*Job, error)
	GetJobOwner(ctx context.Context, jobID string) (int64, error)
	ListPendingJobs(ctx context.Context, createdBefore time.Time) ([]Job, error)
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
