package retry

import (
	"context"
	"time"
)

// Policy controls how many attempts are made and how long to back off
// between them. The delay before attempt N (N >= 2) is Base * 2^(N-2),
// so with Base=1s the observed delays are 1s, 2s, 4s, ...
type Policy struct {
	// Attempts is the maximum number of attempts, including the first.
	Attempts int
	// Base is the delay before the first retry.
	Base time.Duration
	// Sleep waits for the given duration. Tests replace it to observe
	// delays without waiting. When nil, a context-aware timer is used.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy matches the pipeline default: three attempts with a one
// second base delay.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Base: time.Second}
}

// Result reports how a Do call went.
type Result struct {
	// Attempts is the number of attempts actually made.
	Attempts int
}

// Do runs fn until it succeeds, the attempts are exhausted, or retryable
// rejects the error. The last error is returned alongside the attempt count
// so callers can attribute the failure to a single entity and continue.
func Do(ctx context.Context, policy Policy, retryable func(error) bool, fn func(ctx context.Context) error) (Result, error) {
	attempts := policy.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	base := policy.Base
	if base <= 0 {
		base = time.Second
	}
	sleep := policy.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			// Exponential backoff: base * 2^(attempt-2) before attempt N.
			delay := base << (attempt - 2)
			if err := sleep(ctx, delay); err != nil {
				return Result{Attempts: attempt - 1}, err
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return Result{Attempts: attempt}, nil
		}
		if retryable != nil && !retryable(lastErr) {
			return Result{Attempts: attempt}, lastErr
		}
	}

	return Result{Attempts: attempts}, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
