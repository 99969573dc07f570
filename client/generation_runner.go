package client

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/poller"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Generator produces outputs across the configured providers.
type Generator interface {
	GenerateWithFallback(ctx context.Context, req provider.Request) (*provider.Result, error)
}

// GenerationRunner fulfils one generation and writes the result back. It is the handler for
// generation jobs and the body of the best-effort trigger endpoint.
type GenerationRunner struct {
	generations store.GenerationStore
	artifacts   store.ArtifactStore
	queue       *JobQueue
	generator   Generator
	captions    bool
	logger      *zap.Logger
	newID       func() string
}

func NewGenerationRunner(generations store.GenerationStore, artifacts store.ArtifactStore, queue *JobQueue, generator Generator, logger *zap.Logger) *GenerationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationRunner{
		generations: generations,
		artifacts:   artifacts,
		queue:       queue,
		generator:   generator,
		captions:    true,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// WithoutCaptions stops the runner from queueing caption jobs for new artifacts.
func (r *GenerationRunner) WithoutCaptions() *GenerationRunner {
	r.captions = false
	return r
}

// Handle runs the generation referenced by a claimed job. On the job's last attempt a retryable
// failure also fails the generation, so it never stays processing after its job is gone.
func (r *GenerationRunner) Handle(ctx context.Context, job types.Job) error {
	return r.Run(ctx, job.ResourceID, !job.ShouldRetry())
}

// Run generates the outputs of a processing generation. A generation that is no longer processing
// (cancelled, already completed or failed) is left alone.
func (r *GenerationRunner) Run(ctx context.Context, generationID string, lastAttempt bool) error {
	g, err := r.generations.FindByID(ctx, generationID)
	if err != nil {
		return fmt.Errorf("failed to load generation %s: %w", generationID, err)
	}
	log := r.logger.With(zap.String("generation_id", g.ID), zap.String("requestor_id", g.RequestorID))

	if g.Status != state.StatusProcessing {
		log.Info("generation is not processing, skipping", zap.String("status", g.Status.String()))
		return nil
	}

	result, err := r.generator.GenerateWithFallback(ctx, provider.Request{
		Prompt:            g.Prompt,
		Options:           g.Parameters,
		Count:             g.OutputCount,
		PreferredProvider: g.ProviderID,
	})
	if err != nil {
		return r.fail(ctx, g, err, lastAttempt)
	}
	for _, partial := range result.Errors {
		log.Warn("generation partially fulfilled",
			zap.Int("produced", len(result.Outputs)),
			zap.Int("requested", g.OutputCount),
			zap.Error(partial))
	}

	outputs := make([]types.GenerationOutput, 0, len(result.Outputs))
	for _, out := range result.Outputs {
		artifact := &types.Artifact{
			ID:           r.newID(),
			GenerationID: g.ID,
			URL:          outputURL(out.Output),
			MediaType:    out.MediaType,
			Prompt:       g.Prompt,
		}
		if err := r.artifacts.Create(ctx, artifact); err != nil {
			return fmt.Errorf("failed to store artifact for generation %s: %w", g.ID, err)
		}
		outputs = append(outputs, types.GenerationOutput{
			ArtifactID: artifact.ID,
			URL:        artifact.URL,
			MediaType:  artifact.MediaType,
			Provider:   out.Provider,
			ModelID:    out.ModelID,
		})
	}

	ok, err := r.generations.Complete(ctx, g.ID, result.Provider(), outputs)
	if err != nil {
		return fmt.Errorf("failed to complete generation %s: %w", g.ID, err)
	}
	if !ok {
		log.Info("generation changed while running, result discarded")
		return nil
	}
	log.Info("generation completed", zap.String("provider", result.Provider()), zap.Int("outputs", len(outputs)))

	if !r.captions {
		return nil
	}
	for _, out := range outputs {
		if _, err := r.queue.Enqueue(ctx, types.JobKindCaption, out.ArtifactID); err != nil {
			log.Warn("failed to enqueue caption job", zap.String("artifact_id", out.ArtifactID), zap.Error(err))
		}
	}
	return nil
}

// fail decides between a permanent generation failure and a retry of the job.
func (r *GenerationRunner) fail(ctx context.Context, g *types.Generation, cause error, lastAttempt bool) error {
	permanent := errors.Is(cause, provider.ErrNoProviders) || provider.ClassOf(cause) == provider.Permanent
	timedOut := errors.Is(cause, poller.ErrTimeout)

	if !permanent && !lastAttempt {
		r.logger.Warn("generation attempt failed, will retry",
			zap.String("generation_id", g.ID),
			zap.Bool("poll_timeout", timedOut),
			zap.Error(cause))
		return cause
	}

	msg := custom_errors.Message(cause, constants.MaxErrorLength)
	if _, err := r.generations.Fail(context.WithoutCancel(ctx), g.ID, msg); err != nil {
		return fmt.Errorf("failed to record generation failure (%v): %w", cause, err)
	}
	r.logger.Warn("generation failed", zap.String("generation_id", g.ID), zap.Error(cause))

	if permanent {
		return custom_errors.Permanent(cause)
	}
	return cause
}

// outputURL inlines bytes-only outputs as a data URL.
func outputURL(out provider.Output) string {
	if out.URL != "" || len(out.Data) == 0 {
		return out.URL
	}
	return "data:" + out.MediaType + ";base64," + base64.StdEncoding.EncodeToString(out.Data)
}
