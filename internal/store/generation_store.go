package store

import (
	"context"
	"github.com/RezaEskandarii/genfire/types"
	"time"
)

// GenerationStore persists generation requests. Status changes are guarded on processing.
type GenerationStore interface {
	Create(ctx context.Context, g *types.Generation) error

	// FindByID returns custom_errors.ErrNotFound when the generation does not exist.
	FindByID(ctx context.Context, id string) (*types.Generation, error)

	FetchByRequestor(ctx context.Context, requestorID string, page int, pageSize int) (*types.PaginationResult[types.Generation], error)

	Complete(ctx context.Context, id string, providerID string, outputs []types.GenerationOutput) (bool, error)

	Fail(ctx context.Context, id string, errMsg string) (bool, error)

	// FailStuck fails generations still processing after olderThan that no live job will pick up.
	// A processing job whose lock is older than lockTTL and has no attempts left is not live.
	FailStuck(ctx context.Context, olderThan, lockTTL time.Duration, errMsg string) (int64, error)
}
