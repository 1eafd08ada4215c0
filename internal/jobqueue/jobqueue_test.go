package jobqueue

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanbot/internal/telegram"
)

type collectingHandler struct {
	mu   sync.Mutex
	seen []int64
	err  error
}

func (h *collectingHandler) HandleUpdate(ctx context.Context, u telegram.Update) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, u.UpdateID)
	return h.err
}

func (h *collectingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

func TestMemoryQueue_HandlesEveryUpdateOnce(t *testing.T) {
	h := &collectingHandler{}
	q := NewMemoryQueue(&QueueConfig{MaxWorkers: 3, BufferSize: 8}, h)
	require.NoError(t, q.Start(context.Background()))

	for i := int64(1); i <= 50; i++ {
		require.NoError(t, q.Enqueue(context.Background(), telegram.Update{UpdateID: i}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(ctx))

	assert.Equal(t, 50, h.count())
	assert.ElementsMatch(t, seq(50), h.seen)
}

func TestMemoryQueue_HandlerErrorsDoNotStopWorkers(t *testing.T) {
	h := &collectingHandler{err: errors.New("boom")}
	q := NewMemoryQueue(&QueueConfig{MaxWorkers: 1}, h)
	require.NoError(t, q.Start(context.Background()))

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), telegram.Update{UpdateID: i}))
	}
	require.NoError(t, q.Stop(context.Background()))
	assert.Equal(t, 3, h.count())
}

func TestMemoryQueue_EnqueueAfterStop(t *testing.T) {
	q := NewMemoryQueue(DefaultQueueConfig(), &collectingHandler{})
	require.NoError(t, q.Start(context.Background()))
	require.NoError(t, q.Stop(context.Background()))
	require.NoError(t, q.Stop(context.Background()))

	err := q.Enqueue(context.Background(), telegram.Update{UpdateID: 1})
	assert.ErrorIs(t, err, ErrQueueClosed)
}

func TestMemoryQueue_EnqueueRespectsContextWhenFull(t *testing.T) {
	q := NewMemoryQueue(&QueueConfig{BufferSize: 1}, &collectingHandler{})
	// Not started: nothing drains the buffer.
	require.NoError(t, q.Enqueue(context.Background(), telegram.Update{UpdateID: 1}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := q.Enqueue(ctx, telegram.Update{UpdateID: 2})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNew_SelectsBackend(t *testing.T) {
	q, err := New(context.Background(), &QueueConfig{}, &collectingHandler{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryQueue{}, q)

	_, err = New(context.Background(), &QueueConfig{Backend: "kafka"}, &collectingHandler{})
	assert.Error(t, err)

	_, err = New(context.Background(), &QueueConfig{Backend: BackendRiver}, &collectingHandler{})
	assert.Error(t, err)
}

func TestTelegramUpdateArgs(t *testing.T) {
	args := TelegramUpdateArgs{}
	assert.Equal(t, "telegram_update", args.Kind())
	assert.Equal(t, 1, args.InsertOpts().MaxAttempts)
}

func TestJobQueue_River(t *testing.T) {
	url := os.Getenv("YAN_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("YAN_TEST_DATABASE_URL not set")
	}

	h := &collectingHandler{}
	ctx := context.Background()
	q, err := NewJobQueue(ctx, &QueueConfig{Backend: BackendRiver, DatabaseURL: url, MaxWorkers: 2}, h)
	require.NoError(t, err)
	require.NoError(t, q.Start(ctx))

	require.NoError(t, q.Enqueue(ctx, telegram.Update{UpdateID: 77}))
	assert.Eventually(t, func() bool { return h.count() == 1 }, 10*time.Second, 50*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	require.NoError(t, q.Stop(stopCtx))
}

func seq(n int64) []int64 {
	out := make([]int64, 0, n)
	for i := int64(1); i <= n; i++ {
		out = append(out, i)
	}
	return out
}
