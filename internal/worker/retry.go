package worker

import "time"

// RetryPolicy bounds how transient storage failures are retried. Business
// outcomes are never retried; the policy applies only to errors the domain
// layer marks retryable.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the backoff before the given 1-based attempt, clamped to
// MaxDelay when set.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}

	d := float64(initial)
	for i := 1; i < attempt; i++ {
		d *= factor
		if r.MaxDelay > 0 && time.Duration(d) >= r.MaxDelay {
			return r.MaxDelay
		}
	}

	out := time.Duration(d)
	if r.MaxDelay > 0 && out > r.MaxDelay {
		out = r.MaxDelay
	}
	if out <= 0 {
		out = time.Second
	}
	return out
}
