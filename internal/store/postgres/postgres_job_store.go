package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/lib/pq"
	"math"
	"sort"
	"strings"
	"time"
)

const jobColumns = `id, kind, resource_id, status, locked_at, attempts, max_attempts,
		       run_after, error, created_at, updated_at, completed_at`

const claimedJobColumns = `j.id, j.kind, j.resource_id, j.status, j.locked_at, j.attempts, j.max_attempts,
		          j.run_after, j.error, j.created_at, j.updated_at, j.completed_at`

type postgresJobStore struct {
	db *sql.DB
}

// NewPostgresJobStore creates a JobStore backed by genfire_schema.jobs.
func NewPostgresJobStore(db *sql.DB) store.JobStore {
	return &postgresJobStore{db: db}
}

func (r *postgresJobStore) Insert(ctx context.Context, kind types.JobKind, resourceID string, maxAttempts int) (int64, error) {
	query := `
		INSERT INTO genfire_schema.jobs (
			kind,
			resource_id,
			status,
			max_attempts,
			created_at,
			updated_at
		)
		VALUES ($1, $2, $3, $4, now(), now())
		RETURNING id
	`

	var jobID int64
	err := r.db.QueryRowContext(ctx, query, kind, resourceID, state.StatusQueued, maxAttempts).Scan(&jobID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s job for %s: %w", kind, resourceID, err)
	}
	return jobID, nil
}

func (r *postgresJobStore) FindByID(ctx context.Context, id int64) (*types.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM genfire_schema.jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %d: %w", id, custom_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find job %d: %w", id, err)
	}
	return job, nil
}

func (r *postgresJobStore) FindByResourceID(ctx context.Context, kind types.JobKind, resourceID string) (*types.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM genfire_schema.jobs
		WHERE kind = $1 AND resource_id = $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, kind, resourceID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s job for %s: %w", kind, resourceID, custom_errors.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find %s job for %s: %w", kind, resourceID, err)
	}
	return job, nil
}

// ClaimBatch runs select-and-lock as a single statement. SKIP LOCKED lets concurrent
// claimers pass over rows another transaction is taking instead of claiming them twice.
func (r *postgresJobStore) ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration) ([]types.Job, error) {
	if limit < 1 {
		return nil, nil
	}

	query := `
		WITH candidates AS (
			SELECT id
			FROM genfire_schema.jobs
			WHERE (
			        (status = $1 AND locked_at IS NULL)
			     OR (status = $2 AND locked_at IS NULL AND attempts < max_attempts)
			     OR (status = $3 AND locked_at < now() - make_interval(secs => $4))
			      )
			  AND (run_after IS NULL OR run_after <= now())
			  AND attempts < max_attempts
			ORDER BY created_at ASC
			LIMIT $5
			FOR UPDATE SKIP LOCKED
		)
		UPDATE genfire_schema.jobs j
		SET locked_at  = now(),
		    status     = $3,
		    attempts   = j.attempts + 1,
		    updated_at = now()
		FROM candidates c
		WHERE j.id = c.id
		RETURNING ` + claimedJobColumns

	rows, err := r.db.QueryContext(ctx, query,
		state.StatusQueued,
		state.StatusFailed,
		state.StatusProcessing,
		lockTTL.Seconds(),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to read claimed jobs: %w", err)
	}

	// RETURNING carries no order guarantee
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
	})
	return jobs, nil
}

func (r *postgresJobStore) ClaimSingle(ctx context.Context, kind types.JobKind, resourceID string, lockTTL time.Duration) (*types.Job, error) {
	query := `
		WITH target AS (
			SELECT id
			FROM genfire_schema.jobs
			WHERE kind = $1
			  AND resource_id = $2
			  AND status NOT IN ($4, $5)
			  AND (locked_at IS NULL OR locked_at < now() - make_interval(secs => $6))
			  AND attempts <= max_attempts
			ORDER BY created_at DESC
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE genfire_schema.jobs j
		SET locked_at  = now(),
		    status     = $3,
		    attempts   = j.attempts + 1,
		    run_after  = NULL,
		    updated_at = now()
		FROM target t
		WHERE j.id = t.id
		RETURNING ` + claimedJobColumns

	job, err := scanJob(r.db.QueryRowContext(ctx, query,
		kind,
		resourceID,
		state.StatusProcessing,
		state.StatusCompleted,
		state.StatusCancelled,
		lockTTL.Seconds(),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim %s job for %s: %w", kind, resourceID, err)
	}
	return job, nil
}

func (r *postgresJobStore) ReleaseLock(ctx context.Context, lease types.Lease, errMsg string, retryDelay time.Duration) (bool, error) {
	query := `
		UPDATE genfire_schema.jobs
		SET status     = CASE WHEN attempts < max_attempts THEN $2 ELSE $3 END,
		    run_after  = CASE WHEN attempts < max_attempts THEN now() + make_interval(secs => $4) ELSE run_after END,
		    locked_at  = NULL,
		    error      = $5,
		    updated_at = now()
		WHERE id = $1 AND status = $6 AND locked_at = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		lease.JobID,
		state.StatusQueued,
		state.StatusFailed,
		retryDelay.Seconds(),
		nullString(errMsg),
		state.StatusProcessing,
		lease.LockedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to release job %d: %w", lease.JobID, err)
	}
	return affected(res)
}

func (r *postgresJobStore) ForceUnlock(ctx context.Context, lease types.Lease) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.jobs
		SET locked_at  = NULL,
		    status     = $2,
		    updated_at = now()
		WHERE id = $1 AND status = $3 AND locked_at = $4
	`, lease.JobID, state.StatusQueued, state.StatusProcessing, lease.LockedAt)
	if err != nil {
		return fmt.Errorf("failed to force unlock job %d: %w", lease.JobID, err)
	}
	return nil
}

func (r *postgresJobStore) Complete(ctx context.Context, lease types.Lease) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.jobs
		SET status       = $2,
		    completed_at = now(),
		    locked_at    = NULL,
		    error        = NULL,
		    updated_at   = now()
		WHERE id = $1 AND status = $3 AND locked_at = $4
	`, lease.JobID, state.StatusCompleted, state.StatusProcessing, lease.LockedAt)
	if err != nil {
		return false, fmt.Errorf("failed to complete job %d: %w", lease.JobID, err)
	}
	return affected(res)
}

func (r *postgresJobStore) FailPermanently(ctx context.Context, lease types.Lease, errMsg string) (bool, error) {
	// attempts is raised to max_attempts so the failed branch of the claim query never matches again
	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.jobs
		SET status     = $2,
		    locked_at  = NULL,
		    error      = $3,
		    attempts   = GREATEST(attempts, max_attempts),
		    updated_at = now()
		WHERE id = $1 AND status = $4 AND locked_at = $5
	`, lease.JobID, state.StatusFailed, nullString(errMsg), state.StatusProcessing, lease.LockedAt)
	if err != nil {
		return false, fmt.Errorf("failed to fail job %d: %w", lease.JobID, err)
	}
	return affected(res)
}

func (r *postgresJobStore) Cancel(ctx context.Context, jobID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE genfire_schema.jobs
		SET status     = $2,
		    locked_at  = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`, jobID, state.StatusCancelled, pq.Array([]string{
		state.StatusQueued.String(),
		state.StatusFailed.String(),
		state.StatusProcessing.String(),
	}))
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %d: %w", jobID, err)
	}
	return affected(res)
}

func (r *postgresJobStore) FetchJobs(ctx context.Context, page int, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	where := "1=1"
	var args []interface{}
	argIndex := 1

	if len(statuses) > 0 {
		placeholders := make([]string, 0, len(statuses))
		for _, s := range statuses {
			placeholders = append(placeholders, fmt.Sprintf("$%d", argIndex))
			args = append(args, s)
			argIndex++
		}
		where += " AND status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	countQuery := `SELECT COUNT(*) FROM genfire_schema.jobs WHERE ` + where
	selectQuery := `SELECT ` + jobColumns + ` FROM genfire_schema.jobs WHERE ` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIndex, argIndex+1)

	var totalItems int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalItems); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, selectQuery, append(args, pageSize, offset)...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	defer rows.Close()

	jobs, err := scanJobs(rows)
	if err != nil {
		return nil, err
	}

	return paginate(jobs, totalItems, page, pageSize), nil
}

func (r *postgresJobStore) FetchStaleLocked(ctx context.Context, lockTTL time.Duration, limit int) ([]types.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM genfire_schema.jobs
		WHERE status = $1
		  AND locked_at < now() - make_interval(secs => $2)
		ORDER BY locked_at ASC
		LIMIT $3
	`

	rows, err := r.db.QueryContext(ctx, query, state.StatusProcessing, lockTTL.Seconds(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch stale locked jobs: %w", err)
	}
	defer rows.Close()

	return scanJobs(rows)
}

func (r *postgresJobStore) FailAbandoned(ctx context.Context, lockTTL time.Duration, errMsg string) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE genfire_schema.jobs
		SET status     = $1,
		    locked_at  = NULL,
		    error      = $2,
		    updated_at = now()
		WHERE status = $3
		  AND locked_at < now() - make_interval(secs => $4)
		  AND attempts >= max_attempts
		RETURNING id
	`, state.StatusFailed, nullString(errMsg), state.StatusProcessing, lockTTL.Seconds())
	if err != nil {
		return nil, fmt.Errorf("failed to fail abandoned jobs: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan abandoned job id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to fail abandoned jobs: %w", err)
	}
	return ids, nil
}

func (r *postgresJobStore) CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) AS count
		FROM genfire_schema.jobs
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs by status: %w", err)
	}
	defer rows.Close()

	result := make(map[state.JobStatus]int)
	for rows.Next() {
		var status state.JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, status := range state.AllStatuses {
		if _, ok := result[status]; !ok {
			result[status] = 0
		}
	}

	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*types.Job, error) {
	var (
		job         types.Job
		lockedAt    sql.NullTime
		runAfter    sql.NullTime
		lastError   sql.NullString
		completedAt sql.NullTime
	)

	err := row.Scan(
		&job.ID,
		&job.Kind,
		&job.ResourceID,
		&job.Status,
		&lockedAt,
		&job.Attempts,
		&job.MaxAttempts,
		&runAfter,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	job.LockedAt = timePtr(lockedAt)
	job.RunAfter = timePtr(runAfter)
	job.CompletedAt = timePtr(completedAt)
	job.Error = lastError.String
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]types.Job, error) {
	var jobs []types.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func paginate[T any](items []T, totalItems, page, pageSize int) *types.PaginationResult[T] {
	totalPages := int(math.Ceil(float64(totalItems) / float64(pageSize)))
	return &types.PaginationResult[T]{
		Items:           items,
		TotalItems:      totalItems,
		Page:            page,
		PageSize:        pageSize,
		TotalPages:      totalPages,
		HasNextPage:     page < totalPages,
		HasPreviousPage: page > 1,
	}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
