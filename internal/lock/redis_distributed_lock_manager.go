package lock

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"sync"
	"time"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisDistributedLockManager holds locks as expiring keys. The TTL frees a lock whose holder died.
type RedisDistributedLockManager struct {
	client     *redis.Client
	ttl        time.Duration
	retryEvery time.Duration

	mu     sync.Mutex
	tokens map[int]string
}

func NewRedisDistributedLockManager(client *redis.Client, ttl time.Duration) *RedisDistributedLockManager {
	return &RedisDistributedLockManager{
		client:     client,
		ttl:        ttl,
		retryEvery: 200 * time.Millisecond,
		tokens:     make(map[int]string),
	}
}

func (l *RedisDistributedLockManager) Acquire(ctx context.Context, lockID int) error {
	ticker := time.NewTicker(l.retryEvery)
	defer ticker.Stop()

	for {
		ok, err := l.TryAcquire(ctx, lockID)
		if err != nil {
			return fmt.Errorf("failed to acquire lock %d: %w", lockID, err)
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to acquire lock %d: %w", lockID, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (l *RedisDistributedLockManager) TryAcquire(ctx context.Context, lockID int) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, lockKey(lockID), token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock %d: %w", lockID, err)
	}
	if !ok {
		return false, nil
	}

	l.mu.Lock()
	l.tokens[lockID] = token
	l.mu.Unlock()
	return true, nil
}

func (l *RedisDistributedLockManager) Release(ctx context.Context, lockID int) error {
	l.mu.Lock()
	token, ok := l.tokens[lockID]
	delete(l.tokens, lockID)
	l.mu.Unlock()

	if !ok {
		return fmt.Errorf("failed to release lock %d: not held by this instance", lockID)
	}

	n, err := releaseScript.Run(ctx, l.client, []string{lockKey(lockID)}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("failed to release lock %d: %w", lockID, err)
	}
	if n == 0 {
		return fmt.Errorf("failed to release lock %d: lock expired before release", lockID)
	}
	return nil
}

func lockKey(lockID int) string {
	return fmt.Sprintf("genfire:lock:%d", lockID)
}
