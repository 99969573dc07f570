package lock

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func newRedisLockManager(t *testing.T) (*RedisDistributedLockManager, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDistributedLockManager(client, time.Minute), srv
}

func TestRedisDistributedLockManager_TryAcquire(t *testing.T) {
	first, srv := newRedisLockManager(t)
	second := NewRedisDistributedLockManager(redis.NewClient(&redis.Options{Addr: srv.Addr()}), time.Minute)
	ctx := context.Background()

	ok, err := first.TryAcquire(ctx, 7301)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.TryAcquire(ctx, 7301)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Release(ctx, 7301))

	ok, err = second.TryAcquire(ctx, 7301)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisDistributedLockManager_ExpiredHolderCannotRelease(t *testing.T) {
	mgr, srv := newRedisLockManager(t)
	ctx := context.Background()

	require.NoError(t, mgr.Acquire(ctx, 1))
	srv.FastForward(2 * time.Minute)

	err := mgr.Release(ctx, 1)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestRedisDistributedLockManager_AcquireHonoursContext(t *testing.T) {
	mgr, srv := newRedisLockManager(t)
	require.NoError(t, srv.Set(lockKey(5), "someone-else"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := mgr.Acquire(ctx, 5)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
