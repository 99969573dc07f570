package lock

import (
	"context"
	"fmt"
	"sync"
)

// MemoryDistributedLockManager only coordinates goroutines of one process.
type MemoryDistributedLockManager struct {
	mu    sync.Mutex
	slots map[int]chan struct{}
}

func NewMemoryDistributedLockManager() *MemoryDistributedLockManager {
	return &MemoryDistributedLockManager{slots: make(map[int]chan struct{})}
}

func (l *MemoryDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	select {
	case l.slot(lockID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to acquire lock %d: %w", lockID, ctx.Err())
	}
}

func (l *MemoryDistributedLockManager) TryAcquire(_ context.Context, lockID int) (bool, error) {
	select {
	case l.slot(lockID) <- struct{}{}:
		return true, nil
	default:
		return false, nil
	}
}

func (l *MemoryDistributedLockManager) Release(_ context.Context, lockID int) error {
	select {
	case <-l.slot(lockID):
		return nil
	default:
		return fmt.Errorf("failed to release lock %d: not held", lockID)
	}
}

func (l *MemoryDistributedLockManager) slot(lockID int) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[lockID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[lockID] = ch
	}
	return ch
}
