package mocks

import (
	"context"
	"github.com/RezaEskandarii/genfire/internal/caption"
	"github.com/RezaEskandarii/genfire/internal/provider"
)

// MockGenerator is a mock implementation of client.Generator for testing.
type MockGenerator struct {
	GenerateWithFallbackFunc func(ctx context.Context, req provider.Request) (*provider.Result, error)
}

func (m *MockGenerator) GenerateWithFallback(ctx context.Context, req provider.Request) (*provider.Result, error) {
	if m.GenerateWithFallbackFunc != nil {
		return m.GenerateWithFallbackFunc(ctx, req)
	}
	return &provider.Result{}, nil
}

// MockTrigger is a mock implementation of client.Trigger for testing.
type MockTrigger struct {
	FireFunc func(ctx context.Context, generationID string) error
}

func (m *MockTrigger) Fire(ctx context.Context, generationID string) error {
	if m.FireFunc != nil {
		return m.FireFunc(ctx, generationID)
	}
	return nil
}

// MockCaptioner is a mock implementation of caption.Captioner for testing.
type MockCaptioner struct {
	CaptionFunc func(ctx context.Context, url, mediaType string) (caption.Caption, error)
}

func (m *MockCaptioner) Caption(ctx context.Context, url, mediaType string) (caption.Caption, error) {
	if m.CaptionFunc != nil {
		return m.CaptionFunc(ctx, url, mediaType)
	}
	return caption.Caption{Text: "a caption", ModelID: "mock-vision"}, nil
}

// MockParser is a mock implementation of caption.Parser for testing.
type MockParser struct {
	ParseFunc func(ctx context.Context, text, promptContext string) (caption.Parsed, error)
}

func (m *MockParser) Parse(ctx context.Context, text, promptContext string) (caption.Parsed, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(ctx, text, promptContext)
	}
	return caption.Parsed{Structured: []byte(`{}`), ModelID: "mock-parser"}, nil
}
