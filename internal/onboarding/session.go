package onboarding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Stage is a non-terminal onboarding state. Terminal states are represented
// by the absence of a session.
type Stage string

const (
	CollectingHandle     Stage = "collecting-handle"
	CollectingID         Stage = "collecting-id"
	AwaitingConfirmation Stage = "awaiting-confirmation"
)

// Session is one user's in-progress onboarding.
type Session struct {
	UserID      int64     `json:"user_id"`
	Stage       Stage     `json:"stage"`
	Handle      string    `json:"handle,omitempty"`
	FarcasterID int64     `json:"farcaster_id,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SessionStore maps user ids to sessions. Get returns nil when none exists.
type SessionStore interface {
	Get(ctx context.Context, userID int64) (*Session, error)
	Put(ctx context.Context, s *Session) error
	Delete(ctx context.Context, userID int64) error
}

// MemorySessions keeps sessions in process memory.
type MemorySessions struct {
	mu       sync.Mutex
	sessions map[int64]Session
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{sessions: make(map[int64]Session)}
}

func (m *MemorySessions) Get(ctx context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userID]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *MemorySessions) Put(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.UserID] = *s
	return nil
}

func (m *MemorySessions) Delete(ctx context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userID)
	return nil
}

// RedisSessions stores sessions as JSON so several replicas can share
// conversation state. Abandoned sessions expire after ttl.
type RedisSessions struct {
	rdb    *goredis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisSessions connects to addr and verifies the connection.
func NewRedisSessions(ctx context.Context, addr string, ttl time.Duration) (*RedisSessions, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisSessions{rdb: rdb, ttl: ttl, prefix: "yanbot:onboarding:"}, nil
}

func (r *RedisSessions) key(userID int64) string {
	return r.prefix + strconv.FormatInt(userID, 10)
}

func (r *RedisSessions) Get(ctx context.Context, userID int64) (*Session, error) {
	raw, err := r.rdb.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (r *RedisSessions) Put(ctx context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := r.rdb.Set(ctx, r.key(s.UserID), raw, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set session: %w", err)
	}
	return nil
}

func (r *RedisSessions) Delete(ctx context.Context, userID int64) error {
	if err := r.rdb.Del(ctx, r.key(userID)).Err(); err != nil {
		return fmt.Errorf("redis delete session: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (r *RedisSessions) Close() error {
	return r.rdb.Close()
}
