package retry

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/yanbot/internal/logging"
)

// ErrPermanent marks an error that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Config configures retry behavior with exponential backoff
type Config struct {
	MaxRetries int           // Retries after the first attempt
	BaseDelay  time.Duration // Delay before the first retry
	MaxDelay   time.Duration // Upper bound for any single delay
	Multiplier float64       // Growth factor per attempt
	Jitter     bool          // Spread delays by up to 10%
	// ShouldRetry decides whether a failed attempt is retried. Nil means
	// IsRetryableError.
	ShouldRetry func(error) bool
	// OnRetry is called before each backoff sleep.
	OnRetry func(attempt int, err error)
}

// Result contains information about the retry operation
type Result struct {
	Attempts      int
	TotalDuration time.Duration
	LastError     error
	Success       bool
}

// DefaultConfig returns a retry configuration with sensible defaults
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// RewriteConfig is tuned for model calls made while a callback request is
// open: fewer retries and short delays so the agent does not time out.
func RewriteConfig() Config {
	return Config{
		MaxRetries: 2,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   4 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Do runs operation until it succeeds, the retry budget is spent, the error
// is not retryable, or ctx is done.
func Do(ctx context.Context, config Config, operation func(ctx context.Context) error, logger *logging.JobLogger) Result {
	startTime := time.Now()
	shouldRetry := config.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryableError
	}

	var result Result
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		result.Attempts = attempt + 1

		err := operation(ctx)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(startTime)
			if attempt > 0 {
				logger.Log("Operation succeeded after %d retries (total duration: %v)", attempt, result.TotalDuration)
			}
			return result
		}
		result.LastError = err

		if attempt >= config.MaxRetries || errors.Is(err, ErrPermanent) || !shouldRetry(err) {
			result.TotalDuration = time.Since(startTime)
			logger.Warn("Operation failed after %d attempts (total duration: %v): %v",
				result.Attempts, result.TotalDuration, err)
			return result
		}

		delay := calculateDelay(config, attempt)
		logger.Log("Operation failed (attempt %d/%d): %v; retrying in %v",
			attempt+1, config.MaxRetries+1, err, delay)
		if config.OnRetry != nil {
			config.OnRetry(attempt+1, err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(startTime)
			logger.Warn("Operation cancelled during backoff delay: %v", ctx.Err())
			return result
		case <-timer.C:
		}
	}

	result.TotalDuration = time.Since(startTime)
	return result
}

// calculateDelay calculates the delay for the next retry attempt using exponential backoff
func calculateDelay(config Config, attempt int) time.Duration {
	delay := float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt))

	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}

	if config.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(config.BaseDelay)
		}
	}

	return time.Duration(delay)
}

// IsRetryableError reports whether err looks like a transient network or
// provider failure.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range retryableErrors {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

var retryableErrors = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"temporary failure",
	"service unavailable",
	"too many requests",
	"rate limit",
	"resource exhausted",
	"429",
	"500",
	"502",
	"503",
	"504",
	"no such host",
	"broken pipe",
	"eof",
}
