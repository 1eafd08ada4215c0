package onboarding

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseSessionStore(t *testing.T, sessions SessionStore, userID int64) {
	ctx := context.Background()

	got, err := sessions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)

	updated := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	require.NoError(t, sessions.Put(ctx, &Session{
		UserID:      userID,
		Stage:       AwaitingConfirmation,
		Handle:      "alice",
		FarcasterID: 123,
		UpdatedAt:   updated,
	}))

	got, err = sessions.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, AwaitingConfirmation, got.Stage)
	assert.Equal(t, "alice", got.Handle)
	assert.Equal(t, int64(123), got.FarcasterID)
	assert.True(t, updated.Equal(got.UpdatedAt))

	// last write wins
	require.NoError(t, sessions.Put(ctx, &Session{UserID: userID, Stage: CollectingHandle}))
	got, err = sessions.Get(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, CollectingHandle, got.Stage)
	assert.Empty(t, got.Handle)

	require.NoError(t, sessions.Delete(ctx, userID))
	got, err = sessions.Get(ctx, userID)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, sessions.Delete(ctx, userID))
}

func TestMemorySessions(t *testing.T) {
	exerciseSessionStore(t, NewMemorySessions(), 42)
}

func TestMemorySessions_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	sessions := NewMemorySessions()
	require.NoError(t, sessions.Put(ctx, &Session{UserID: 1, Stage: CollectingID, Handle: "bob"}))

	got, err := sessions.Get(ctx, 1)
	require.NoError(t, err)
	got.Handle = "mallory"

	again, err := sessions.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "bob", again.Handle)
}

func TestRedisSessions(t *testing.T) {
	addr := os.Getenv("YAN_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("YAN_TEST_REDIS_ADDR not set")
	}

	sessions, err := NewRedisSessions(context.Background(), addr, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sessions.Close() })

	exerciseSessionStore(t, sessions, time.Now().UnixNano())
}

func TestNewRedisSessions_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisSessions(ctx, "127.0.0.1:1", time.Minute)
	assert.Error(t, err)
}
