package service

import (
	"context"
	"time"

	"slotnik/internal/domain"
	"slotnik/internal/worker"
)

// withRetry re-runs fn on transient storage errors with bounded backoff.
// Business outcomes pass through untouched on the first attempt.
func withRetry(ctx context.Context, policy worker.RetryPolicy, fn func() error) error {
	var err error
	attempts := policy.MaxRetries
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !domain.Retryable(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.NextDelay(attempt)):
		}
	}
	return err
}
