package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/store"
	"time"
)

type postgresRateLimitStore struct {
	db *sql.DB
}

func NewPostgresRateLimitStore(db *sql.DB) store.RateLimitStore {
	return &postgresRateLimitStore{db: db}
}

// Hit increments the counter for key, starting a new window when the stored one has expired.
func (r *postgresRateLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	query := `
		INSERT INTO genfire_schema.rate_limits AS rl (key, count, expires_at)
		VALUES ($1, 1, now() + make_interval(secs => $2))
		ON CONFLICT (key) DO UPDATE
		SET count      = CASE WHEN rl.expires_at <= now() THEN 1 ELSE rl.count + 1 END,
		    expires_at = CASE WHEN rl.expires_at <= now() THEN now() + make_interval(secs => $2) ELSE rl.expires_at END
		RETURNING count, expires_at
	`

	var (
		count     int
		expiresAt time.Time
	)
	if err := r.db.QueryRowContext(ctx, query, key, window.Seconds()).Scan(&count, &expiresAt); err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to hit rate limit %s: %w", key, err)
	}
	return count, expiresAt, nil
}

func (r *postgresRateLimitStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM genfire_schema.rate_limits WHERE expires_at <= now()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired rate limits: %w", err)
	}
	return res.RowsAffected()
}
