package client

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/message_broaker"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"go.uber.org/zap"
	"time"
)

// fallbackTimeout bounds the minimal unlock that runs when a release failed.
const fallbackTimeout = 10 * time.Second

const abandonedJobError = "worker stopped holding the lock on the last attempt"

// JobQueue is the lease-based queue shared by every worker invocation.
// Workers never talk to each other; they coordinate only through the job rows.
type JobQueue struct {
	store  store.JobStore
	broker message_broaker.MessageBroker
	cfg    config.QueueConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewJobQueue wires a queue over jobStore. broker may be nil, in which case workers
// only find new jobs on their next poll.
func NewJobQueue(jobStore store.JobStore, broker message_broaker.MessageBroker, cfg config.QueueConfig, logger *zap.Logger) *JobQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = constants.MaxAttempts
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = constants.DefaultLockTTL
	}
	return &JobQueue{
		store:  jobStore,
		broker: broker,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

func (q *JobQueue) LockTTL() time.Duration {
	return q.cfg.LockTTL
}

// Enqueue inserts a queued job and publishes a wake-up notice. A failed publish is logged only:
// the job is already durable and the next poll will find it.
func (q *JobQueue) Enqueue(ctx context.Context, kind types.JobKind, resourceID string) (int64, error) {
	id, err := q.store.Insert(ctx, kind, resourceID, q.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to enqueue %s job for %s: %w", kind, resourceID, err)
	}

	if q.broker != nil {
		notice, err := message_broaker.EncodeNotice(message_broaker.JobNotice{JobID: id, Kind: kind, ResourceID: resourceID})
		if err == nil {
			err = q.broker.Publish(ctx, notice)
		}
		if err != nil {
			q.logger.Warn("failed to publish job notice", zap.Int64("job_id", id), zap.Error(err))
		}
	}
	return id, nil
}

// ClaimBatch locks up to n eligible jobs, oldest first.
func (q *JobQueue) ClaimBatch(ctx context.Context, n int) ([]types.Job, error) {
	jobs, err := q.store.ClaimBatch(ctx, n, q.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	return jobs, nil
}

// ClaimSingle locks the newest job of a resource for manual reprocessing.
// It returns nil, nil when there is nothing to claim.
func (q *JobQueue) ClaimSingle(ctx context.Context, kind types.JobKind, resourceID string) (*types.Job, error) {
	job, err := q.store.ClaimSingle(ctx, kind, resourceID, q.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s job for %s: %w", kind, resourceID, err)
	}
	return job, nil
}

// ReleaseLock hands a processing job back to the queue, or fails it when its attempts are spent.
// It reports whether the release changed the job. It never returns an error: a failed release
// falls back to a bare unlock, and a failed fallback is logged so the lock TTL can recover the row.
func (q *JobQueue) ReleaseLock(ctx context.Context, lease types.Lease, cause error) bool {
	msg := custom_errors.Message(cause, constants.MaxErrorLength)

	changed, err := q.store.ReleaseLock(ctx, lease, msg, q.cfg.RetryDelay)
	if err == nil {
		if !changed {
			q.leaseLost("release", lease)
		}
		return changed
	}

	q.logger.Warn("failed to release job lock, forcing unlock", zap.Int64("job_id", lease.JobID), zap.Error(err))

	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackTimeout)
	defer cancel()
	if ferr := q.store.ForceUnlock(fctx, lease); ferr != nil {
		q.logger.Error("lock release failure, job waits for the lock ttl",
			zap.Int64("job_id", lease.JobID),
			zap.Duration("lock_ttl", q.cfg.LockTTL),
			zap.NamedError("release_error", err),
			zap.Error(ferr))
		return false
	}
	return true
}

func (q *JobQueue) Complete(ctx context.Context, lease types.Lease) (bool, error) {
	ok, err := q.store.Complete(ctx, lease)
	if err != nil {
		return false, fmt.Errorf("failed to complete job %d: %w", lease.JobID, err)
	}
	if !ok {
		q.leaseLost("complete", lease)
	}
	return ok, nil
}

func (q *JobQueue) FailPermanently(ctx context.Context, lease types.Lease, cause error) (bool, error) {
	ok, err := q.store.FailPermanently(ctx, lease, custom_errors.Message(cause, constants.MaxErrorLength))
	if err != nil {
		return false, fmt.Errorf("failed to fail job %d: %w", lease.JobID, err)
	}
	if !ok {
		q.leaseLost("fail", lease)
	}
	return ok, nil
}

// FailAbandoned fails jobs whose worker died holding the lock on their last attempt.
func (q *JobQueue) FailAbandoned(ctx context.Context) ([]int64, error) {
	ids, err := q.store.FailAbandoned(ctx, q.cfg.LockTTL, abandonedJobError)
	if err != nil {
		return nil, fmt.Errorf("failed to fail abandoned jobs: %w", err)
	}
	return ids, nil
}

// leaseLost logs a write that matched no row: the job was cancelled, settled, or claimed
// again after this lease expired.
func (q *JobQueue) leaseLost(op string, lease types.Lease) {
	q.logger.Info("job write skipped, lease no longer held",
		zap.String("op", op),
		zap.Int64("job_id", lease.JobID),
		zap.Time("locked_at", lease.LockedAt))
}

// Cancel keeps a job from being claimed again. A worker already running it finishes,
// but its completion write no longer matches and is discarded.
func (q *JobQueue) Cancel(ctx context.Context, jobID int64) (bool, error) {
	ok, err := q.store.Cancel(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job %d: %w", jobID, err)
	}
	return ok, nil
}

func (q *JobQueue) Find(ctx context.Context, jobID int64) (*types.Job, error) {
	return q.store.FindByID(ctx, jobID)
}

func (q *JobQueue) Jobs(ctx context.Context, page, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error) {
	return q.store.FetchJobs(ctx, page, pageSize, statuses)
}

// Status counts jobs by status and lists the oldest stale locks.
func (q *JobQueue) Status(ctx context.Context) (*types.QueueStatus, error) {
	counts, err := q.store.CountAllJobsGroupedByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	limit := q.cfg.StaleListLimit
	if limit < 1 {
		limit = 50
	}
	stale, err := q.store.FetchStaleLocked(ctx, q.cfg.LockTTL, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale locks: %w", err)
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	if stale == nil {
		stale = []types.Job{}
	}
	return &types.QueueStatus{
		Counts:      counts,
		Total:       total,
		StaleLocked: stale,
		LockTTL:     q.cfg.LockTTL,
		CheckedAt:   q.now(),
	}, nil
}
