/*
Package jobqueue hands inbound chat updates to background workers so the
webhook can acknowledge Telegram immediately.

Two backends exist: an in-process channel for single-replica deployments and a
River queue on Postgres. For tuning parameters see queue_config.go.
*/
package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/yanbot/internal/metrics"
	"github.com/yanbot/internal/telegram"
)

// ErrQueueClosed is returned by Enqueue after Stop.
var ErrQueueClosed = errors.New("update queue closed")

// Handler processes one update.
type Handler interface {
	HandleUpdate(ctx context.Context, u telegram.Update) error
}

// UpdateQueue accepts updates for asynchronous handling.
type UpdateQueue interface {
	Enqueue(ctx context.Context, u telegram.Update) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// New builds the queue selected by cfg.Backend.
func New(ctx context.Context, cfg *QueueConfig, h Handler) (UpdateQueue, error) {
	cfg = cfg.withDefaults()
	switch cfg.Backend {
	case BackendMemory:
		return NewMemoryQueue(cfg, h), nil
	case BackendRiver:
		return NewJobQueue(ctx, cfg, h)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.Backend)
	}
}

// handle runs h with the per-update timeout and records the outcome.
func handle(ctx context.Context, h Handler, u telegram.Update, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.HandleUpdate(ctx, u); err != nil {
		metrics.IncUpdate("error")
		log.Error().Err(err).
			Int64("update_id", u.UpdateID).
			Int64("chat_id", u.ChatID()).
			Msg("Update handling failed")
		return err
	}
	metrics.IncUpdate("ok")
	return nil
}

// MemoryQueue is a buffered channel drained by a fixed worker pool.
type MemoryQueue struct {
	handler Handler
	config  *QueueConfig
	updates chan telegram.Update

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	started bool
}

func NewMemoryQueue(cfg *QueueConfig, h Handler) *MemoryQueue {
	cfg = cfg.withDefaults()
	return &MemoryQueue{
		handler: h,
		config:  cfg,
		updates: make(chan telegram.Update, cfg.BufferSize),
	}
}

// Start launches the workers. They run until Stop.
func (q *MemoryQueue) Start(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return nil
	}
	q.started = true

	// Workers outlive the caller's context; Stop drains them.
	base := context.WithoutCancel(ctx)
	for i := 0; i < q.config.MaxWorkers; i++ {
		q.wg.Add(1)
		go func() {
			defer q.wg.Done()
			for u := range q.updates {
				_ = handle(base, q.handler, u, q.config.JobTimeout)
			}
		}()
	}
	log.Info().Int("workers", q.config.MaxWorkers).Msg("In-memory update queue started")
	return nil
}

// Enqueue blocks while the buffer is full, until ctx is done.
func (q *MemoryQueue) Enqueue(ctx context.Context, u telegram.Update) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.updates <- u:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue update: %w", ctx.Err())
	}
}

// Stop rejects new updates and waits for queued ones to finish.
func (q *MemoryQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.updates)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop update queue: %w", ctx.Err())
	}
}

// TelegramUpdateArgs is the River job payload for one update.
type TelegramUpdateArgs struct {
	Update telegram.Update `json:"update"`
}

// Kind returns the job kind for River
func (TelegramUpdateArgs) Kind() string {
	return "telegram_update"
}

// InsertOpts disables retries; a retried update could reply twice.
func (TelegramUpdateArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: 1}
}

// UpdateWorker handles telegram_update jobs
type UpdateWorker struct {
	river.WorkerDefaults[TelegramUpdateArgs]
	handler Handler
	config  *QueueConfig
}

// Work hands the update to the router
func (w *UpdateWorker) Work(ctx context.Context, job *river.Job[TelegramUpdateArgs]) error {
	return handle(ctx, w.handler, job.Args.Update, w.config.JobTimeout)
}

// Timeout bounds a single job
func (w *UpdateWorker) Timeout(job *river.Job[TelegramUpdateArgs]) time.Duration {
	return w.config.JobTimeout
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue connects to Postgres, applies River's schema migrations and
// creates a client with the update worker registered.
func NewJobQueue(ctx context.Context, cfg *QueueConfig, h Handler) (*JobQueue, error) {
	cfg = cfg.withDefaults()
	if cfg.DatabaseURL == "" {
		return nil, errors.New("river queue requires a database url")
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate River schema: %w", err)
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &UpdateWorker{handler: h, config: cfg})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  cfg.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: cfg,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	if err := jq.client.Start(ctx); err != nil {
		return fmt.Errorf("failed to start River client: %w", err)
	}
	log.Info().Int("workers", jq.config.MaxWorkers).Msg("River update queue started")
	return nil
}

// Stop stops the job queue workers and releases the pool
func (jq *JobQueue) Stop(ctx context.Context) error {
	defer jq.pool.Close()
	return jq.client.Stop(ctx)
}

// Enqueue inserts a telegram_update job
func (jq *JobQueue) Enqueue(ctx context.Context, u telegram.Update) error {
	if _, err := jq.client.Insert(ctx, TelegramUpdateArgs{Update: u}, nil); err != nil {
		return fmt.Errorf("failed to queue update %d: %w", u.UpdateID, err)
	}
	return nil
}
