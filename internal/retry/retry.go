// Package retry runs an operation again while a predicate says its error is worth another try.
package retry

import (
	"context"
	"math/rand/v2"
	"time"
)

// Policy describes when and how long to wait between attempts.
type Policy struct {
	// MaxAttempts counts the first call. Values below 1 mean one attempt.
	MaxAttempts int

	// Retryable decides whether an error gets another attempt. Nil retries nothing.
	Retryable func(error) bool

	// Backoff returns the wait before attempt+1, where attempt is the one that just failed (1-based).
	Backoff func(attempt int) time.Duration

	// Sleep waits for d or until ctx is done. Defaults to a timer select.
	Sleep func(ctx context.Context, d time.Duration) error

	// OnRetry observes every scheduled retry.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Do calls fn until it succeeds, returns a non-retryable error or runs out of attempts.
// The last error is returned unchanged so callers can still classify it.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error)) (T, error) {
	maxAttempts := max(p.MaxAttempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var (
		zero T
		err  error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var result T
		result, err = fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		if attempt == maxAttempts || p.Retryable == nil || !p.Retryable(err) {
			return zero, err
		}

		var delay time.Duration
		if p.Backoff != nil {
			delay = p.Backoff(attempt)
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err, delay)
		}
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return zero, err
		}
	}
	return zero, err
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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

// ExponentialJitter waits base*2^(attempt-1) plus a uniform share of the same amount.
// rnd returns values in [0, 1); nil uses math/rand.
func ExponentialJitter(base time.Duration, rnd func() float64) func(int) time.Duration {
	if rnd == nil {
		rnd = rand.Float64
	}
	return func(attempt int) time.Duration {
		step := base << (attempt - 1)
		return step + time.Duration(rnd()*float64(step))
	}
}

// Linear waits step*attempt.
func Linear(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}
