package client

import (
	"context"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/custom_errors"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"slices"
	"strings"
)

const maxPromptLength = 4000

// GenerationDispatcher accepts generation requests and hands them to a worker, either through a
// durable job or through the trigger endpoint.
type GenerationDispatcher struct {
	generations store.GenerationStore
	queue       *JobQueue
	trigger     Trigger
	limiter     *RateLimiter
	mode        config.GenerationMode
	maxOutputs  int
	providers   []string
	logger      *zap.Logger
	newID       func() string
}

// NewGenerationDispatcher needs trigger only in best-effort mode. providers lists the names a
// request may prefer.
func NewGenerationDispatcher(
	generations store.GenerationStore,
	queue *JobQueue,
	trigger Trigger,
	limiter *RateLimiter,
	cfg config.GenerationConfig,
	providers []string,
	logger *zap.Logger,
) *GenerationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationDispatcher{
		generations: generations,
		queue:       queue,
		trigger:     trigger,
		limiter:     limiter,
		mode:        cfg.Mode,
		maxOutputs:  max(cfg.MaxOutputs, 1),
		providers:   providers,
		logger:      logger,
		newID:       uuid.NewString,
	}
}

// Create validates and persists a generation as processing, then dispatches it.
// In best-effort mode a trigger timeout is not an error: the generation stays processing and
// either the triggered run or the stuck sweeper settles it.
func (d *GenerationDispatcher) Create(ctx context.Context, req types.GenerationRequest) (*types.Generation, error) {
	if err := d.validate(&req); err != nil {
		return nil, err
	}
	if d.limiter != nil {
		if err := d.limiter.Allow(ctx, req.RequestorID); err != nil {
			return nil, err
		}
	}

	g := &types.Generation{
		ID:          d.newID(),
		RequestorID: req.RequestorID,
		ProviderID:  req.ProviderID,
		Prompt:      req.Prompt,
		Parameters:  req.Parameters,
		OutputCount: req.OutputCount,
		Status:      state.StatusProcessing,
	}
	if err := d.generations.Create(ctx, g); err != nil {
		return nil, fmt.Errorf("failed to create generation: %w", err)
	}
	log := d.logger.With(zap.String("generation_id", g.ID), zap.String("mode", d.mode.String()))

	switch d.mode {
	case config.BestEffort:
		err := d.trigger.Fire(ctx, g.ID)
		switch {
		case err == nil:
		case errors.Is(err, custom_errors.ErrTriggerTimeout):
			log.Warn("trigger timed out, generation left processing", zap.Error(err))
		default:
			d.failGeneration(ctx, g, err)
			return g, err
		}

	default:
		if _, err := d.queue.Enqueue(ctx, types.JobKindGeneration, g.ID); err != nil {
			d.failGeneration(ctx, g, err)
			return g, err
		}
	}

	log.Info("generation dispatched")
	return g, nil
}

// Find returns a generation only to the requestor that owns it.
func (d *GenerationDispatcher) Find(ctx context.Context, requestorID, id string) (*types.Generation, error) {
	g, err := d.generations.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if g.RequestorID != requestorID {
		return nil, fmt.Errorf("generation %s: %w", id, custom_errors.ErrNotFound)
	}
	return g, nil
}

func (d *GenerationDispatcher) List(ctx context.Context, requestorID string, page, pageSize int) (*types.PaginationResult[types.Generation], error) {
	return d.generations.FetchByRequestor(ctx, requestorID, page, pageSize)
}

func (d *GenerationDispatcher) failGeneration(ctx context.Context, g *types.Generation, cause error) {
	msg := custom_errors.Message(cause, constants.MaxErrorLength)
	if _, err := d.generations.Fail(context.WithoutCancel(ctx), g.ID, msg); err != nil {
		d.logger.Error("failed to record generation dispatch failure",
			zap.String("generation_id", g.ID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	g.Status = state.StatusFailed
	g.Error = msg
	d.logger.Warn("generation dispatch failed", zap.String("generation_id", g.ID), zap.Error(cause))
}

func (d *GenerationDispatcher) validate(req *types.GenerationRequest) error {
	v := &custom_errors.ValidationError{}

	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.RequestorID == "" {
		v.Addf("requestor id is required")
	}
	if req.Prompt == "" {
		v.Addf("prompt is required")
	}
	if len(req.Prompt) > maxPromptLength {
		v.Addf("prompt must be at most %d characters", maxPromptLength)
	}
	if req.OutputCount == 0 {
		req.OutputCount = 1
	}
	if req.OutputCount < 1 || req.OutputCount > d.maxOutputs {
		v.Addf("output count must be between 1 and %d", d.maxOutputs)
	}
	if req.ProviderID != "" && len(d.providers) > 0 && !slices.Contains(d.providers, req.ProviderID) {
		v.Addf("unknown provider %q", req.ProviderID)
	}
	return v.Err()
}
