package lock

import "context"

// DistributedLockManager guards work that only one instance may run at a time.
// Lock ids come from constants.Locks.
type DistributedLockManager interface {
	// Acquire blocks until the lock is held or ctx is done.
	Acquire(ctx context.Context, lockID int) error

	// TryAcquire takes the lock if it is free and reports whether it did.
	TryAcquire(ctx context.Context, lockID int) (bool, error)

	Release(ctx context.Context, lockID int) error
}
