package redis

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/redis/go-redis/v9"
	"time"
)

const keyPrefix = "genfire:ratelimit:"

type redisRateLimitStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisRateLimitStore keeps one expiring counter key per window.
func NewRedisRateLimitStore(client *redis.Client) store.RateLimitStore {
	return &redisRateLimitStore{client: client, now: time.Now}
}

func (r *redisRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	fullKey := keyPrefix + key

	var (
		incr *redis.IntCmd
		ttl  *redis.DurationCmd
	)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, fullKey)
		ttl = pipe.PTTL(ctx, fullKey)
		return nil
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to hit rate limit %s: %w", key, err)
	}

	remaining := ttl.Val()
	// a fresh key, or one left without expiry by a crash between INCR and PEXPIRE
	if remaining < 0 {
		if err := r.client.PExpire(ctx, fullKey, window).Err(); err != nil {
			return 0, time.Time{}, fmt.Errorf("failed to set rate limit window %s: %w", key, err)
		}
		remaining = window
	}

	return int(incr.Val()), r.now().Add(remaining), nil
}

// DeleteExpired is a no-op. Redis drops expired keys on its own.
func (r *redisRateLimitStore) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}
