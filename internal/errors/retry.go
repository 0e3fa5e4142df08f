package errors

import (
	"context"
	"fmt"
	"math"
	"time"

	"patchpilot/internal/logging"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxRetries int           // attempts beyond the first (default: 3)
	BaseDelay  time.Duration // base delay for exponential backoff (default: 1.5s)
	MaxDelay   time.Duration // ceiling for a single backoff wait (default: 30s)

	// Sleep is the wait implementation used between attempts. Tests inject a
	// recording stub here; nil means a context-aware real sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryConfig returns sensible defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1500 * time.Millisecond,
		MaxDelay:   30 * time.Second,
	}
}

func (c RetryConfig) sleep(ctx context.Context, d time.Duration) error {
	if c.Sleep != nil {
		return c.Sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RetryWithResult executes fn with bounded exponential-backoff retry.
// Only transient errors are retried; permanent errors return immediately.
// Backoff waits are cancellable through ctx.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	return RetryWithResultAndLog(ctx, config, fn, nil)
}

// RetryWithResultAndLog is RetryWithResult with a custom logger.
func RetryWithResultAndLog[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, error) {
	if logger == nil {
		logger = logging.NewComponentLogger("retry")
	}

	var zero T
	var lastErr error

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			logger.Debug("context cancelled, stopping retries")
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("retry succeeded on attempt %d/%d", attempt+1, config.MaxRetries+1)
			}
			return result, nil
		}

		lastErr = err
		logger.Debug("attempt %d/%d failed: %v", attempt+1, config.MaxRetries+1, err)

		if !IsTransient(err) {
			logger.Debug("error is not transient, stopping retries")
			return zero, err
		}
		if attempt == config.MaxRetries {
			logger.Warn("max retries (%d) exhausted", config.MaxRetries)
			break
		}

		delay := calculateBackoff(attempt, config)
		logger.Debug("waiting %v before retry", delay)
		if err := config.sleep(ctx, delay); err != nil {
			logger.Debug("context cancelled during backoff")
			return zero, fmt.Errorf("context cancelled during retry: %w", err)
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// calculateBackoff returns baseDelay * 2^attempt capped at MaxDelay.
func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(2, float64(attempt)))
	if config.MaxDelay > 0 && delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	return delay
}
