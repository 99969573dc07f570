package client

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/types"
)

// JobManager is the operator-facing surface over the queue: status, listings,
// cancellation and manual reprocessing.
type JobManager struct {
	Queue      *JobQueue
	Processor  *JobProcessor
	Worker     *Worker
	Dispatcher *GenerationDispatcher
	Runner     *GenerationRunner
}

func NewJobManager(queue *JobQueue, processor *JobProcessor, worker *Worker, dispatcher *GenerationDispatcher, runner *GenerationRunner) *JobManager {
	return &JobManager{
		Queue:      queue,
		Processor:  processor,
		Worker:     worker,
		Dispatcher: dispatcher,
		Runner:     runner,
	}
}

func (jm *JobManager) Status(ctx context.Context) (*types.QueueStatus, error) {
	return jm.Queue.Status(ctx)
}

func (jm *JobManager) Jobs(ctx context.Context, page, pageSize int, statuses []state.JobStatus) (*types.PaginationResult[types.Job], error) {
	return jm.Queue.Jobs(ctx, page, pageSize, statuses)
}

// Reprocess claims the newest job of a resource outside the normal batch order and runs it now.
// It returns custom_errors.ErrNotFound when the job is missing, finished, cancelled or held by
// a fresh lock.
func (jm *JobManager) Reprocess(ctx context.Context, kind types.JobKind, resourceID string) (types.JobOutcome, error) {
	job, err := jm.Queue.ClaimSingle(ctx, kind, resourceID)
	if err != nil {
		return types.JobOutcome{}, err
	}
	if job == nil {
		return types.JobOutcome{}, fmt.Errorf("no claimable %s job for %s: %w", kind, resourceID, custom_errors.ErrNotFound)
	}
	return jm.Processor.ProcessOne(ctx, *job), nil
}

func (jm *JobManager) Cancel(ctx context.Context, jobID int64) error {
	ok, err := jm.Queue.Cancel(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("job %d is not cancellable: %w", jobID, custom_errors.ErrNotFound)
	}
	return nil
}

// Drain runs one batch invocation.
func (jm *JobManager) Drain(ctx context.Context) ([]types.JobOutcome, error) {
	return jm.Worker.RunOnce(ctx)
}

// ProcessGeneration runs a best-effort generation in the calling process. There is no job
// to retry it, so every failure is final.
func (jm *JobManager) ProcessGeneration(ctx context.Context, generationID string) error {
	return jm.Runner.Run(ctx, generationID, true)
}
