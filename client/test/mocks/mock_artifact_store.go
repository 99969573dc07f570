package mocks

import (
	"context"
	"github.com/RezaEskandarii/genfire/types"
)

// MockArtifactStore is a mock implementation of store.ArtifactStore for testing.
type MockArtifactStore struct {
	CreateFunc       func(ctx context.Context, a *types.Artifact) error
	FetchFunc        func(ctx context.Context, id string) (*types.Artifact, error)
	SaveAnalysisFunc func(ctx context.Context, id string, analysis types.ArtifactAnalysis) error
}

func (m *MockArtifactStore) Create(ctx context.Context, a *types.Artifact) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	return nil
}

func (m *MockArtifactStore) Fetch(ctx context.Context, id string) (*types.Artifact, error) {
	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, id)
	}
	return nil, nil
}

func (m *MockArtifactStore) SaveAnalysis(ctx context.Context, id string, analysis types.ArtifactAnalysis) error {
	if m.SaveAnalysisFunc != nil {
		return m.SaveAnalysisFunc(ctx, id, analysis)
	}
	return nil
}
