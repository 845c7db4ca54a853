package common

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// RetryPolicy describes how a blocking call is retried.
// Attempt n (1-based) is followed by a delay of 2^(n-1)·BackoffBase.
type RetryPolicy struct {
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep          func(ctx context.Context, d time.Duration) error
	Logger         *slog.Logger
	MaxAttempts    int
	BackoffBase    time.Duration
	MaxDelay       time.Duration
	AttemptTimeout time.Duration
}

// Backoff returns the delay that follows the given attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BackoffBase << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d < 0) {
		d = p.MaxDelay
	}
	return d
}

// Do runs op until it succeeds, returns a non-retryable error or attempts run
// out. Each attempt gets its own timeout derived from ctx. It returns the
// number of attempts made.
func (p RetryPolicy) Do(ctx context.Context, op func(ctx context.Context) error) (int, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	logger := LoggerOrDefault(p.Logger)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		lastErr = p.runAttempt(ctx, op)
		if lastErr == nil {
			return attempt, nil
		}

		// The caller going away is final; an attempt timing out is not.
		if ctx.Err() != nil {
			return attempt, ctx.Err()
		}
		if !IsRetryable(lastErr) {
			return attempt, lastErr
		}
		if attempt == maxAttempts {
			break
		}

		delay := p.Backoff(attempt)
		if errors.Is(lastErr, ErrRateLimit) && p.MaxDelay > 0 {
			delay = p.MaxDelay
		}

		logger.Warn("Operation failed, retrying",
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"delay", delay,
			"error", lastErr)

		if err := sleep(ctx, delay); err != nil {
			return attempt, err
		}
	}

	return maxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrMaxRetries, maxAttempts, lastErr)
}

func (p RetryPolicy) runAttempt(ctx context.Context, op func(ctx context.Context) error) error {
	if p.AttemptTimeout <= 0 {
		return op(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
