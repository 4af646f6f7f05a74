package errors

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"aide/internal/logging"
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts  int           // Total number of attempts including the first (default: 3)
	BaseDelay    time.Duration // Delay before the first retry (default: 2s)
	Multiplier   float64       // Backoff multiplier per retry (default: 2)
	MaxDelay     time.Duration // Ceiling for any single delay (default: 30s)
	JitterFactor float64       // Randomization factor; 0 gives a deterministic schedule

	// RetryIf decides whether a failed attempt should be retried.
	// Nil defaults to IsTransient.
	RetryIf func(error) bool
}

// DefaultRetryConfig returns the deterministic 2s/4s/8s schedule used for
// action handlers. A single actor drives executions, so no jitter is needed.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		Multiplier:  2,
		MaxDelay:    30 * time.Second,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = 2 * time.Second
	}
	if c.Multiplier <= 0 {
		c.Multiplier = 2
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 30 * time.Second
	}
	if c.RetryIf == nil {
		c.RetryIf = IsTransient
	}
	return c
}

// RetryableFunc is a function that can be retried.
type RetryableFunc func(ctx context.Context) error

// Retry executes fn with bounded exponential backoff.
func Retry(ctx context.Context, config RetryConfig, fn RetryableFunc) error {
	_, err := RetryWithResult(ctx, config, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// RetryWithResult executes a function returning a value with bounded
// exponential backoff. Attempts reports how many times fn ran.
func RetryWithResult[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error)) (T, error) {
	result, _, err := RetryWithResultAndAttempts(ctx, config, fn, nil)
	return result, err
}

// RetryWithResultAndAttempts is RetryWithResult plus an attempt count and an
// optional logger. The executor records the count in execution results.
func RetryWithResultAndAttempts[T any](ctx context.Context, config RetryConfig, fn func(ctx context.Context) (T, error), logger logging.Logger) (T, int, error) {
	config = config.normalized()
	logger = logging.OrNop(logger)

	var lastErr error
	var zero T
	attempts := 0

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return zero, attempts, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		logger.Debug("Executing (attempt %d/%d)", attempt, config.MaxAttempts)
		attempts++

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				logger.Info("Succeeded after %d attempts", attempt)
			}
			return result, attempts, nil
		}

		lastErr = err
		logger.Debug("Attempt %d failed: %v", attempt, err)

		if !config.RetryIf(err) {
			logger.Debug("Error is not retryable, stopping")
			return zero, attempts, err
		}

		// No sleep after the final attempt.
		if attempt == config.MaxAttempts {
			logger.Warn("Retry budget (%d attempts) exhausted", config.MaxAttempts)
			break
		}

		delay := backoffDelay(attempt, config)
		logger.Debug("Waiting %v before next attempt", delay)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, attempts, fmt.Errorf("context cancelled during backoff: %w", ctx.Err())
		}
	}

	return zero, attempts, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// backoffDelay computes the delay after the given 1-based attempt:
// base * multiplier^(attempt-1), capped at MaxDelay, with optional jitter.
func backoffDelay(attempt int, config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.BaseDelay) * math.Pow(config.Multiplier, float64(attempt-1)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}

	if config.JitterFactor > 0 {
		jitter := float64(delay) * config.JitterFactor
		delay = time.Duration(float64(delay) + (rand.Float64()*2-1)*jitter)
		if delay < 0 {
			delay = config.BaseDelay
		}
		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
	}

	return delay
}
