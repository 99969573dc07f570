package client

import (
	"context"
	"github.com/RezaEskandarii/genfire/internal/message_broaker"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
	"sync"
	"time"
)

// Worker repeatedly claims a batch and processes it. Each batch is one stateless invocation;
// several may run at once, bounded by the configured concurrency.
type Worker struct {
	queue     *JobQueue
	processor *JobProcessor
	broker    message_broaker.MessageBroker
	batchSize int
	interval  time.Duration
	sem       *semaphore.Weighted
	logger    *zap.Logger
}

func NewWorker(queue *JobQueue, processor *JobProcessor, broker message_broaker.MessageBroker, queueCfg config.QueueConfig, workerCfg config.WorkerConfig, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	interval := workerCfg.PollInterval
	if interval <= 0 {
		interval = config.DefaultPollInterval
	}
	return &Worker{
		queue:     queue,
		processor: processor,
		broker:    broker,
		batchSize: max(queueCfg.BatchSize, 1),
		interval:  interval,
		sem:       semaphore.NewWeighted(int64(max(workerCfg.Concurrency, 1))),
		logger:    logger,
	}
}

// RunOnce claims one batch and processes it sequentially.
func (w *Worker) RunOnce(ctx context.Context) ([]types.JobOutcome, error) {
	jobs, err := w.queue.ClaimBatch(ctx, w.batchSize)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return []types.JobOutcome{}, nil
	}
	w.logger.Debug("claimed jobs", zap.Int("count", len(jobs)))
	return w.processor.ProcessBatch(ctx, jobs), nil
}

// Start runs batches on every tick and on every broker notice until ctx is done.
// A wake-up that finds every slot busy is dropped; the busy invocations or the next tick
// will pick the work up.
func (w *Worker) Start(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	var notices <-chan []byte
	if w.broker != nil {
		ch, err := w.broker.Consume(ctx)
		if err != nil {
			w.logger.Warn("job notices unavailable, polling only", zap.Error(err))
		} else {
			notices = ch
		}
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", zap.Duration("poll_interval", w.interval), zap.Int("batch_size", w.batchSize))
	w.spawn(ctx, &wg)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-ticker.C:
			w.spawn(ctx, &wg)
		case _, ok := <-notices:
			if !ok {
				notices = nil
				continue
			}
			w.spawn(ctx, &wg)
		}
	}
}

func (w *Worker) spawn(ctx context.Context, wg *sync.WaitGroup) {
	if !w.sem.TryAcquire(1) {
		return
	}
	wg.Add(1)
	go func() {
		defer func() {
			w.sem.Release(1)
			wg.Done()
		}()

		outcomes, err := w.RunOnce(ctx)
		if err != nil {
			if ctx.Err() == nil {
				w.logger.Error("batch invocation failed", zap.Error(err))
			}
			return
		}
		if len(outcomes) > 0 {
			w.logger.Info("batch processed", zap.Int("jobs", len(outcomes)))
		}
	}()
}
