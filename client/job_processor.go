package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"go.uber.org/zap"
	"runtime/debug"
)

// JobProcessor runs claimed jobs through their handlers and settles the lease afterwards.
type JobProcessor struct {
	queue    *JobQueue
	handlers *config.JobHandler
	logger   *zap.Logger
}

func NewJobProcessor(queue *JobQueue, handlers *config.JobHandler, logger *zap.Logger) *JobProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobProcessor{queue: queue, handlers: handlers, logger: logger}
}

// ProcessOne runs one claimed job. Whatever happens inside the handler, including a panic,
// the job leaves this call either completed, failed or released.
func (p *JobProcessor) ProcessOne(ctx context.Context, job types.Job) (outcome types.JobOutcome) {
	outcome = types.JobOutcome{ID: job.ID, Kind: job.Kind, Status: state.StatusProcessing}
	log := p.logger.With(
		zap.Int64("job_id", job.ID),
		zap.String("kind", job.Kind.String()),
		zap.String("resource_id", job.ResourceID),
		zap.Int("attempt", job.Attempts))

	lease := job.Lease()
	released := false
	var cause error

	defer func() {
		if r := recover(); r != nil {
			cause = fmt.Errorf("panic in %s handler: %v", job.Kind, r)
			log.Error("job handler panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
		if released {
			return
		}
		if cause == nil {
			cause = errors.New("job was not settled by its handler")
		}
		outcome.Status = p.releasedStatus(context.WithoutCancel(ctx), job, p.queue.ReleaseLock(context.WithoutCancel(ctx), lease, cause))
		outcome.Error = custom_errors.Message(cause, 200)
	}()

	err := p.handlers.Execute(ctx, job)
	cause = err

	switch {
	case err == nil:
		ok, cerr := p.queue.Complete(ctx, lease)
		if cerr != nil {
			cause = cerr
			log.Warn("failed to complete job", zap.Error(cerr))
			return outcome
		}
		released = true
		if !ok {
			outcome.Status = p.currentStatus(ctx, job.ID)
			outcome.Error = "result discarded, lease no longer held"
			log.Info("job result discarded", zap.String("status", outcome.Status.String()))
			return outcome
		}
		outcome.Status = state.StatusCompleted
		log.Info("job completed")

	case custom_errors.IsPermanent(err):
		ok, ferr := p.queue.FailPermanently(ctx, lease, err)
		if ferr != nil {
			log.Warn("failed to mark job failed", zap.Error(ferr))
			return outcome
		}
		released = true
		outcome.Status = state.StatusFailed
		if !ok {
			outcome.Status = p.currentStatus(ctx, job.ID)
		}
		outcome.Error = err.Error()
		log.Warn("job failed permanently", zap.Error(err))

	default:
		released = true
		outcome.Status = p.releasedStatus(ctx, job, p.queue.ReleaseLock(ctx, lease, err))
		outcome.Error = err.Error()
		log.Warn("job failed, lock released", zap.Error(err), zap.String("next_status", outcome.Status.String()))
	}
	return outcome
}

// ProcessBatch runs jobs one after another in claim order.
func (p *JobProcessor) ProcessBatch(ctx context.Context, jobs []types.Job) []types.JobOutcome {
	outcomes := make([]types.JobOutcome, 0, len(jobs))
	for _, job := range jobs {
		outcomes = append(outcomes, p.ProcessOne(ctx, job))
	}
	return outcomes
}

// releasedStatus is the status ReleaseLock moved job to. job.Attempts already counts this run.
// When the release changed nothing the stored status is read back.
func (p *JobProcessor) releasedStatus(ctx context.Context, job types.Job, changed bool) state.JobStatus {
	if !changed {
		return p.currentStatus(ctx, job.ID)
	}
	if job.ShouldRetry() {
		return state.StatusQueued
	}
	return state.StatusFailed
}

func (p *JobProcessor) currentStatus(ctx context.Context, jobID int64) state.JobStatus {
	job, err := p.queue.Find(ctx, jobID)
	if err != nil || job == nil {
		return state.StatusProcessing
	}
	return job.Status
}
