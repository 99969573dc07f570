package store

import (
	"context"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
	"time"
)

// JobStore is the shared job table. Every method that moves a job out of processing is
// guarded on the lease of the claim that took it and reports whether a row actually changed.
type JobStore interface {
	// Insert adds a queued job and returns its ID.
	Insert(ctx context.Context, kind types.JobKind, resourceID string, maxAttempts int) (int64, error)

	// FindByID returns custom_errors.ErrNotFound when no job has the given ID.
	FindByID(ctx context.Context, id int64) (*types.Job, error)

	// FindByResourceID returns the newest job of the given kind for a resource.
	FindByResourceID(ctx context.Context, kind types.JobKind, resourceID string) (*types.Job, error)

	// ClaimBatch selects and locks up to limit eligible jobs in one atomic operation,
	// oldest first. Claimed jobs come back as processing with attempts incremented.
	ClaimBatch(ctx context.Context, limit int, lockTTL time.Duration) ([]types.Job, error)

	// ClaimSingle locks the newest job for a resource regardless of run_after.
	// It returns nil when the job is completed, cancelled, freshly locked or missing.
	ClaimSingle(ctx context.Context, kind types.JobKind, resourceID string, lockTTL time.Duration) (*types.Job, error)

	// ReleaseLock requeues a processing job with a delay, or fails it when no attempts are left.
	ReleaseLock(ctx context.Context, lease types.Lease, errMsg string, retryDelay time.Duration) (bool, error)

	// ForceUnlock is the minimal reset used when ReleaseLock itself failed.
	ForceUnlock(ctx context.Context, lease types.Lease) error

	// Complete marks a processing job completed and clears its error and lock.
	Complete(ctx context.Context, lease types.Lease) (bool, error)

	// FailPermanently fails a processing job and spends its remaining attempts.
	FailPermanently(ctx context.Context, lease types.Lease, errMsg string) (bool, error)

	// Cancel stops a job from being claimed again. In-flight work is not interrupted.
	Cancel(ctx context.Context, jobID int64) (bool, error)

	// FetchJobs pages through jobs, optionally filtered by status.
	FetchJobs(ctx context.Context, page int, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error)

	// FetchStaleLocked lists processing jobs whose lock is older than lockTTL.
	FetchStaleLocked(ctx context.Context, lockTTL time.Duration, limit int) ([]types.Job, error)

	// FailAbandoned fails processing jobs whose lock is older than lockTTL and that have no
	// attempts left, so a crash on the last attempt does not leave them processing forever.
	FailAbandoned(ctx context.Context, lockTTL time.Duration, errMsg string) ([]int64, error)

	CountAllJobsGroupedByStatus(ctx context.Context) (map[state.JobStatus]int, error)
}
