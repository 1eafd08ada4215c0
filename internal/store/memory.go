package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps users and jobs in process memory. Used when no database
// is configured and in tests.
type MemoryStore struct {
	mu    sync.Mutex
	users map[int64]User
	jobs  map[string]Job
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users: make(map[int64]User),
		jobs:  make(map[string]Job),
		now:   time.Now,
	}
}

func (s *MemoryStore) GetOrCreateUser(ctx context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		now := s.now()
		u = User{ID: id, CreatedAt: now, UpdatedAt: now}
		s.users[id] = u
	}
	return &u, nil
}

func (s *MemoryStore) UpdateUser(ctx context.Context, id int64, handle string, farcasterID int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	u, ok := s.users[id]
	if !ok {
		u = User{ID: id, CreatedAt: now}
	}
	u.XHandle = handle
	u.FarcasterID = farcasterID
	u.UpdatedAt = now
	s.users[id] = u
	return &u, nil
}

func (s *MemoryStore) CreateJob(ctx context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	job.Status = StatusPending
	s.jobs[job.ID] = *job
	return nil
}

func (s *MemoryStore) CompleteJob(ctx context.Context, jobID string, result json.RawMessage, at time.Time) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusPending {
		return nil, ErrJobCompleted
	}
	job.Status = StatusCompleted
	job.Result = append(json.RawMessage(nil), result...)
	job.CompletedAt = &at
	s.jobs[jobID] = job
	return &job, nil
}

func (s *MemoryStore) GetJobOwner(ctx context.Context, jobID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[jobID]
	if !ok {
		return 0, ErrJobNotFound
	}
	return job.UserID, nil
}

func (s *MemoryStore) ListPendingJobs(ctx context.Context, createdBefore time.Time) ([]Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Job
	for _, job := range s.jobs {
		if job.Status == StatusPending && job.CreatedAt.Before(createdBefore) {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// GetJob returns a copy of a stored job. Test helper for callers that need to
// inspect state without going through the ledger.
func (s *MemoryStore) GetJob(jobID string) (Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	return job, ok
}
