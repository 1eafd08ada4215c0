package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/tasks"
)

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	u, err := s.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), u.ID)
	assert.False(t, u.Onboarded())

	_, err = s.UpdateUser(ctx, 42, "alice", 123)
	require.NoError(t, err)

	u, err = s.GetOrCreateUser(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.XHandle)
	assert.Equal(t, int64(123), u.FarcasterID)
	assert.True(t, u.Onboarded())
}

func TestMemoryStore_CompleteJobOnce(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.CreateJob(ctx, &Job{ID: "j1", UserID: 7, Kind: tasks.Fans}))

	owner, err := s.GetJobOwner(ctx, "j1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), owner)

	payload := json.RawMessage(`{"result_markdown":"x"}`)
	job, err := s.CompleteJob(ctx, "j1", payload, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, job.Status)
	assert.Equal(t, int64(7), job.UserID)
	assert.Equal(t, tasks.Fans, job.Kind)
	require.NotNil(t, job.CompletedAt)

	_, err = s.CompleteJob(ctx, "j1", payload, time.Now())
	assert.ErrorIs(t, err, ErrJobCompleted)

	_, err = s.CompleteJob(ctx, "missing", payload, time.Now())
	assert.ErrorIs(t, err, ErrJobNotFound)

	_, err = s.GetJobOwner(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestMemoryStore_ListPendingJobs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateJob(ctx, &Job{ID: "old", UserID: 1, Kind: tasks.Report, CreatedAt: base}))
	require.NoError(t, s.CreateJob(ctx, &Job{ID: "older", UserID: 1, Kind: tasks.Cast, CreatedAt: base.Add(-time.Hour)}))
	require.NoError(t, s.CreateJob(ctx, &Job{ID: "new", UserID: 2, Kind: tasks.Fans, CreatedAt: base.Add(time.Hour)}))
	require.NoError(t, s.CreateJob(ctx, &Job{ID: "done", UserID: 3, Kind: tasks.Fans, CreatedAt: base.Add(-2 * time.Hour)}))
	_, err := s.CompleteJob(ctx, "done", nil, base)
	require.NoError(t, err)

	jobs, err := s.ListPendingJobs(ctx, base.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "older", jobs[0].ID)
	assert.Equal(t, "old", jobs[1].ID)
}
