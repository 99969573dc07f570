// Package poller waits for long-running provider operations.
package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout means the attempt budget ran out before the operation reported done.
// It is not a failure of the operation itself.
var ErrTimeout = errors.New("operation did not finish before the poll budget ran out")

// OperationError is an explicit failure reported by the operation.
type OperationError struct {
	Operation string
	Err       error
}

func (e *OperationError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Operation, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// Status is one observation of an operation.
type Status[T any] struct {
	Done   bool
	Err    error
	Result T
}

type Poller struct {
	Interval    time.Duration
	MaxAttempts int

	// Sleep defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Ceiling is the longest wall-clock time a Poll can wait between checks.
func (p Poller) Ceiling() time.Duration {
	return p.Interval * time.Duration(p.MaxAttempts)
}

// Poll calls check until it reports done or MaxAttempts checks were made.
// A check error is returned as is: it is a transport problem, not an operation outcome.
func Poll[T any](ctx context.Context, p Poller, operation string, check func(ctx context.Context) (Status[T], error)) (T, error) {
	var zero T
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		status, err := check(ctx)
		if err != nil {
			return zero, err
		}
		if status.Done {
			if status.Err != nil {
				return zero, &OperationError{Operation: operation, Err: status.Err}
			}
			return status.Result, nil
		}
		if attempt == p.MaxAttempts {
			break
		}
		if err := sleep(ctx, p.Interval); err != nil {
			return zero, err
		}
	}
	return zero, fmt.Errorf("%s after %d checks: %w", operation, p.MaxAttempts, ErrTimeout)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
