package store

import (
	"context"
	"time"
)

// RateLimitStore keeps fixed-window counters outside process memory so that
// independent workers and API instances share them.
type RateLimitStore interface {
	// Hit counts one request for key and returns the count inside the current window.
	Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error)

	// DeleteExpired drops counters whose window has passed.
	DeleteExpired(ctx context.Context) (int64, error)
}
