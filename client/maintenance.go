package client

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/lock"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"time"
)

const stuckGenerationError = "generation did not finish: no worker picked it up before the deadline"

// Maintenance runs the periodic sweeps. Every task takes a singleton lock first, so
// with several instances running only one of them does the work on each tick.
type Maintenance struct {
	queue       *JobQueue
	generations store.GenerationStore
	rateLimits  store.RateLimitStore
	locks       lock.DistributedLockManager
	cfg         config.MaintenanceConfig
	logger      *zap.Logger
}

func NewMaintenance(queue *JobQueue, generations store.GenerationStore, rateLimits store.RateLimitStore, locks lock.DistributedLockManager, cfg config.MaintenanceConfig, logger *zap.Logger) *Maintenance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Maintenance{
		queue:       queue,
		generations: generations,
		rateLimits:  rateLimits,
		locks:       locks,
		cfg:         cfg,
		logger:      logger,
	}
}

// Start schedules the sweeps and blocks until ctx is done. Running sweeps are awaited.
func (m *Maintenance) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	for _, task := range []struct {
		name     string
		schedule string
		lockID   int
		run      func(ctx context.Context) error
	}{
		{"stale lock report", m.cfg.StaleReportSchedule, constants.StaleLockReportLock, m.ReportStaleLocks},
		{"stuck generation sweep", m.cfg.StuckSweepSchedule, constants.StuckGenerationLock, m.SweepStuckGenerations},
		{"counter purge", m.cfg.CounterPurgeSchedule, constants.RateLimitCleanupLock, m.PurgeExpiredCounters},
	} {
		if _, err := c.AddFunc(task.schedule, func() {
			if err := m.exclusive(ctx, task.lockID, task.run); err != nil {
				m.logger.Error("maintenance task failed", zap.String("task", task.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("failed to schedule %s: %w", task.name, err)
		}
	}

	c.Start()
	m.logger.Info("maintenance scheduled")
	<-ctx.Done()
	<-c.Stop().Done()
	return ctx.Err()
}

// exclusive runs fn only if this instance got the lock.
func (m *Maintenance) exclusive(ctx context.Context, lockID int, fn func(ctx context.Context) error) error {
	ok, err := m.locks.TryAcquire(ctx, lockID)
	if err != nil {
		return fmt.Errorf("failed to acquire lock %d: %w", lockID, err)
	}
	if !ok {
		return nil
	}
	defer func() {
		if err := m.locks.Release(context.WithoutCancel(ctx), lockID); err != nil {
			m.logger.Warn("failed to release maintenance lock", zap.Int("lock_id", lockID), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// ReportStaleLocks logs jobs whose lease expired. The rows themselves are reclaimed by
// the next batch claim; the report exists for alerting.
func (m *Maintenance) ReportStaleLocks(ctx context.Context) error {
	status, err := m.queue.Status(ctx)
	if err != nil {
		return err
	}
	if len(status.StaleLocked) == 0 {
		return nil
	}

	ids := make([]int64, 0, len(status.StaleLocked))
	oldest := time.Duration(0)
	for _, job := range status.StaleLocked {
		ids = append(ids, job.ID)
		if job.LockedAt != nil {
			oldest = max(oldest, status.CheckedAt.Sub(*job.LockedAt))
		}
	}
	m.logger.Warn("stale job locks found",
		zap.Int("count", len(ids)),
		zap.Int64s("job_ids", ids),
		zap.Duration("oldest_lock_age", oldest),
		zap.Duration("lock_ttl", status.LockTTL))
	return nil
}

// SweepAbandonedJobs fails jobs whose worker died holding the lock on the last attempt.
// No claim would ever pick them up again, so without this they stay processing forever.
func (m *Maintenance) SweepAbandonedJobs(ctx context.Context) error {
	ids, err := m.queue.FailAbandoned(ctx)
	if err != nil {
		return err
	}
	if len(ids) > 0 {
		m.logger.Warn("abandoned jobs failed", zap.Int64s("job_ids", ids), zap.Duration("lock_ttl", m.queue.LockTTL()))
	}
	return nil
}

// SweepStuckGenerations fails abandoned jobs, then generations that stayed processing past
// StuckAfter with no live job left to finish them.
func (m *Maintenance) SweepStuckGenerations(ctx context.Context) error {
	if err := m.SweepAbandonedJobs(ctx); err != nil {
		return err
	}
	n, err := m.generations.FailStuck(ctx, m.cfg.StuckAfter, m.queue.LockTTL(), stuckGenerationError)
	if err != nil {
		return fmt.Errorf("failed to sweep stuck generations: %w", err)
	}
	if n > 0 {
		m.logger.Warn("stuck generations failed", zap.Int64("count", n), zap.Duration("stuck_after", m.cfg.StuckAfter))
	}
	return nil
}

func (m *Maintenance) PurgeExpiredCounters(ctx context.Context) error {
	n, err := m.rateLimits.DeleteExpired(ctx)
	if err != nil {
		return fmt.Errorf("failed to purge rate limit counters: %w", err)
	}
	if n > 0 {
		m.logger.Debug("expired rate limit counters purged", zap.Int64("count", n))
	}
	return nil
}
