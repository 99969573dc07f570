package store

import (
	"context"
	"github.com/RezaEskandarii/genfire/types"
)

type ArtifactStore interface {
	Create(ctx context.Context, a *types.Artifact) error

	// Fetch returns custom_errors.ErrNotFound for missing and deleted artifacts alike.
	Fetch(ctx context.Context, id string) (*types.Artifact, error)

	SaveAnalysis(ctx context.Context, id string, analysis types.ArtifactAnalysis) error
}
