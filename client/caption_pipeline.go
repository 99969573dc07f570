package client

import (
	"context"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/caption"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/types"
	"go.uber.org/zap"
)

// CaptionPipeline describes an artifact and classifies the description. It is the handler
// for caption jobs.
type CaptionPipeline struct {
	artifacts store.ArtifactStore
	captioner caption.Captioner
	parser    caption.Parser
	logger    *zap.Logger
}

func NewCaptionPipeline(artifacts store.ArtifactStore, captioner caption.Captioner, parser caption.Parser, logger *zap.Logger) *CaptionPipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CaptionPipeline{artifacts: artifacts, captioner: captioner, parser: parser, logger: logger}
}

// Handle runs both stages and persists their outputs together. A missing or deleted artifact
// surfaces as custom_errors.ErrNotFound so the job is not retried.
func (c *CaptionPipeline) Handle(ctx context.Context, job types.Job) error {
	artifact, err := c.artifacts.Fetch(ctx, job.ResourceID)
	if err != nil {
		return fmt.Errorf("failed to fetch artifact %s: %w", job.ResourceID, err)
	}

	described, err := c.captioner.Caption(ctx, artifact.URL, artifact.MediaType)
	if err != nil {
		return fmt.Errorf("caption stage: %w", err)
	}

	parsed, err := c.parser.Parse(ctx, described.Text, artifact.Prompt)
	if err != nil {
		return fmt.Errorf("parse stage: %w", err)
	}

	if err := c.artifacts.SaveAnalysis(ctx, artifact.ID, types.ArtifactAnalysis{
		Caption:      described.Text,
		CaptionModel: described.ModelID,
		Structured:   parsed.Structured,
		ParserModel:  parsed.ModelID,
	}); err != nil {
		return fmt.Errorf("failed to save analysis for artifact %s: %w", artifact.ID, err)
	}

	c.logger.Debug("artifact analyzed", zap.String("artifact_id", artifact.ID), zap.String("caption_model", described.ModelID))
	return nil
}
