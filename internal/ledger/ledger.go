// Package ledger tracks dispatched jobs from creation to completion. It is the
// only join point between a dispatch and its out-of-band callback.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

var (
	// ErrNotFound means the job id was never issued.
	ErrNotFound = store.ErrJobNotFound
	// ErrAlreadyCompleted means a callback for the job was already accepted.
	ErrAlreadyCompleted = store.ErrJobCompleted
)

// IsCorrelationMiss reports whether err is an unknown or duplicate job id.
// Duplicates are expected from at-least-once callbacks and are not failures.
func IsCorrelationMiss(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyCompleted)
}

// Result is the payload stored on a completed job.
type Result struct {
	ResultMarkdown string `json:"result_markdown"`
}

// Ledger creates and completes jobs
type Ledger struct {
	store store.Store
	newID func() string
	now   func() time.Time
}

// New creates a ledger backed by the given store
func New(s store.Store) *Ledger {
	return &Ledger{
		store: s,
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// CreateJob allocates a job id and persists a pending record.
func (l *Ledger) CreateJob(ctx context.Context, userID int64, kind tasks.Kind) (string, error) {
	if !kind.Valid() {
		return "", fmt.Errorf("create job: %w", tasks.ErrUnknownKind)
	}

	job := &store.Job{
		ID:        l.newID(),
		UserID:    userID,
		Kind:      kind,
		Status:    store.StatusPending,
		CreatedAt: l.now(),
	}
	if err := l.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	log.Debug().
		Str("job_id", job.ID).
		Int64("user_id", userID).
		Str("task_kind", kind.String()).
		Msg("Job created")

	return job.ID, nil
}

// CompleteJob transitions a pending job to completed and returns the updated
// record. Unknown ids return ErrNotFound; repeated calls return
// ErrAlreadyCompleted.
func (l *Ledger) CompleteJob(ctx context.Context, jobID string, result Result) (*store.Job, error) {
	payload, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}

	job, err := l.store.CompleteJob(ctx, jobID, payload, l.now())
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("job_id", job.ID).
		Int64("user_id", job.UserID).
		Str("task_kind", job.Kind.String()).
		Msg("Job completed")

	return job, nil
}

// Owner returns the user who requested the job.
func (l *Ledger) Owner(ctx context.Context, jobID string) (int64, error) {
	return l.store.GetJobOwner(ctx, jobID)
}

// Stale lists jobs that have been pending for longer than olderThan.
func (l *Ledger) Stale(ctx context.Context, olderThan time.Duration) ([]store.Job, error) {
	return l.store.ListPendingJobs(ctx, l.now().Add(-olderThan))
}
