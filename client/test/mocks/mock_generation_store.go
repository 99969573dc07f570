package mocks

import (
	"context"
	"github.com/RezaEskandarii/genfire/types"
	"time"
)

// MockGenerationStore is a mock implementation of store.GenerationStore for testing.
type MockGenerationStore struct {
	CreateFunc           func(ctx context.Context, g *types.Generation) error
	FindByIDFunc         func(ctx context.Context, id string) (*types.Generation, error)
	FetchByRequestorFunc func(ctx context.Context, requestorID string, page int, pageSize int) (*types.PaginationResult[types.Generation], error)
	CompleteFunc         func(ctx context.Context, id string, providerID string, outputs []types.GenerationOutput) (bool, error)
	FailFunc             func(ctx context.Context, id string, errMsg string) (bool, error)
	FailStuckFunc        func(ctx context.Context, olderThan, lockTTL time.Duration, errMsg string) (int64, error)
}

func (m *MockGenerationStore) Create(ctx context.Context, g *types.Generation) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, g)
	}
	return nil
}

func (m *MockGenerationStore) FindByID(ctx context.Context, id string) (*types.Generation, error) {
	if m.FindByIDFunc != nil {
		return m.FindByIDFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockGenerationStore) FetchByRequestor(ctx context.Context, requestorID string, page int, pageSize int) (*types.PaginationResult[types.Generation], error) {
	if m.FetchByRequestorFunc != nil {
		return m.FetchByRequestorFunc(ctx, requestorID, page, pageSize)
	}
	return &types.PaginationResult[types.Generation]{Items: []types.Generation{}}, nil
}

func (m *MockGenerationStore) Complete(ctx context.Context, id string, providerID string, outputs []types.GenerationOutput) (bool, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, id, providerID, outputs)
	}
	return true, nil
}

func (m *MockGenerationStore) Fail(ctx context.Context, id string, errMsg string) (bool, error) {
	if m.FailFunc != nil {
		return m.FailFunc(ctx, id, errMsg)
	}
	return true, nil
}

func (m *MockGenerationStore) FailStuck(ctx context.Context, olderThan, lockTTL time.Duration, errMsg string) (int64, error) {
	if m.FailStuckFunc != nil {
		return m.FailStuckFunc(ctx, olderThan, lockTTL, errMsg)
	}
	return 0, nil
}
