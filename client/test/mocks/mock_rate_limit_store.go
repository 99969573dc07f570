package mocks

import (
	"context"
	"time"
)

// MockRateLimitStore is a mock implementation of store.RateLimitStore for testing.
type MockRateLimitStore struct {
	HitFunc           func(ctx context.Context, key string, window time.Duration) (int, time.Time, error)
	DeleteExpiredFunc func(ctx context.Context) (int64, error)
}

func (m *MockRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	if m.HitFunc != nil {
		return m.HitFunc(ctx, key, window)
	}
	return 1, time.Now().Add(window), nil
}

func (m *MockRateLimitStore) DeleteExpired(ctx context.Context) (int64, error) {
	if m.DeleteExpiredFunc != nil {
		return m.DeleteExpiredFunc(ctx)
	}
	return 0, nil
}
