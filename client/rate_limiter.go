package client

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/store"
	"time"
)

// RateLimiter enforces a fixed-window request budget per actor. The counters live in the
// rate-limit store, so every API instance sees the same budget.
type RateLimiter struct {
	store  store.RateLimitStore
	name   string
	limit  int
	window time.Duration
}

func NewRateLimiter(rateLimits store.RateLimitStore, name string, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{store: rateLimits, name: name, limit: limit, window: window}
}

// Allow counts one request and returns an error wrapping custom_errors.ErrRateLimited once the
// actor is over budget.
func (l *RateLimiter) Allow(ctx context.Context, actorID string) error {
	count, resetAt, err := l.store.Hit(ctx, l.name+":"+actorID, l.window)
	if err != nil {
		return fmt.Errorf("failed to check rate limit: %w", err)
	}
	if count > l.limit {
		return fmt.Errorf("%w: %d %s requests per %s, retry after %s",
			custom_errors.ErrRateLimited, l.limit, l.name, l.window, resetAt.UTC().Format(time.RFC3339))
	}
	return nil
}
