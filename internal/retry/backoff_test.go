package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries: retries,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   20 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 3, config.MaxRetries)
	assert.Equal(t, time.Second, config.BaseDelay)
	assert.Equal(t, 30*time.Second, config.MaxDelay)
	assert.Equal(t, 2.0, config.Multiplier)
	assert.True(t, config.Jitter)
}

func TestDo_Success(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.LastError)
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	var retried []int
	config := fastConfig(3)
	config.OnRetry = func(attempt int, err error) { retried = append(retried, attempt) }

	result := Do(context.Background(), config, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("temporary failure")
		}
		return nil
	}, nil)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	result := Do(context.Background(), fastConfig(2), func(context.Context) error {
		return errors.New("503 service unavailable")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.EqualError(t, result.LastError, "503 service unavailable")
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	result := Do(context.Background(), fastConfig(5), func(context.Context) error {
		return errors.New("invalid api key")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	config := fastConfig(5)
	config.ShouldRetry = func(error) bool { return true }

	result := Do(context.Background(), config, func(context.Context) error {
		return fmt.Errorf("empty output: %w", ErrPermanent)
	}, nil)

	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, ErrPermanent)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := fastConfig(5)
	config.BaseDelay = time.Second
	config.MaxDelay = time.Second
	config.OnRetry = func(int, error) { cancel() }

	result := Do(ctx, config, func(context.Context) error {
		return errors.New("timeout")
	}, nil)

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.ErrorIs(t, result.LastError, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	config := Config{BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2.0}

	assert.Equal(t, 100*time.Millisecond, calculateDelay(config, 0))
	assert.Equal(t, 200*time.Millisecond, calculateDelay(config, 1))
	assert.Equal(t, 400*time.Millisecond, calculateDelay(config, 2))
	assert.Equal(t, time.Second, calculateDelay(config, 10))

	config.Jitter = true
	for i := 0; i < 50; i++ {
		d := calculateDelay(config, 1)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("googleapi: Error 429: Resource exhausted"), true},
		{errors.New("HTTP 503"), true},
		{context.DeadlineExceeded, true},
		{context.Canceled, false},
		{errors.New("invalid argument"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, IsRetryableError(tt.err), "%v", tt.err)
	}
}
