package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/store"
	"github.com/yanbot/internal/tasks"
)

func TestCreateAndComplete(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemoryStore()
	l := New(mem)

	jobID, err := l.CreateJob(ctx, 42, tasks.Cast)
	require.NoError(t, err)
	assert.Len(t, jobID, 36)

	owner, err := l.Owner(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), owner)

	job, err := l.CompleteJob(ctx, jobID, Result{ResultMarkdown: "1. one 2. two"})
	require.NoError(t, err)
	assert.Equal(t, int64(42), job.UserID)
	assert.Equal(t, tasks.Cast, job.Kind)
	assert.Equal(t, store.StatusCompleted, job.Status)
	assert.JSONEq(t, `{"result_markdown":"1. one 2. two"}`, string(job.Result))
}

func TestCompleteTwice(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore())

	jobID, err := l.CreateJob(ctx, 1, tasks.Report)
	require.NoError(t, err)

	_, err = l.CompleteJob(ctx, jobID, Result{ResultMarkdown: "a"})
	require.NoError(t, err)

	_, err = l.CompleteJob(ctx, jobID, Result{ResultMarkdown: "a"})
	assert.ErrorIs(t, err, ErrAlreadyCompleted)
	assert.True(t, IsCorrelationMiss(err))
}

func TestCompleteUnknown(t *testing.T) {
	l := New(store.NewMemoryStore())

	_, err := l.CompleteJob(context.Background(), "nope", Result{ResultMarkdown: "a"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.True(t, IsCorrelationMiss(err))
	assert.False(t, IsCorrelationMiss(store.ErrUnavailable))
}

func TestCompleteConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore())

	jobID, err := l.CreateJob(ctx, 9, tasks.Fans)
	require.NoError(t, err)

	const callers = 32
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		misses    int
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := l.CompleteJob(ctx, jobID, Result{ResultMarkdown: "Username: bob"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case IsCorrelationMiss(err):
				misses++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, callers-1, misses)
}

func TestCreateJobInvalidKind(t *testing.T) {
	_, err := New(store.NewMemoryStore()).CreateJob(context.Background(), 1, tasks.Kind(99))
	assert.ErrorIs(t, err, tasks.ErrUnknownKind)
}

type failingStore struct {
	store.Store
}

func (failingStore) CreateJob(context.Context, *store.Job) error {
	return errors.Join(store.ErrUnavailable, errors.New("disk full"))
}

func TestCreateJobStoreUnavailable(t *testing.T) {
	l := New(failingStore{Store: store.NewMemoryStore()})

	_, err := l.CreateJob(context.Background(), 1, tasks.Report)
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestStale(t *testing.T) {
	ctx := context.Background()
	l := New(store.NewMemoryStore())
	clock := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }

	oldID, err := l.CreateJob(ctx, 1, tasks.Trending)
	require.NoError(t, err)

	clock = clock.Add(2 * time.Hour)
	_, err = l.CreateJob(ctx, 1, tasks.Optimal)
	require.NoError(t, err)

	stale, err := l.Stale(ctx, time.Hour)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, oldID, stale[0].ID)
}
