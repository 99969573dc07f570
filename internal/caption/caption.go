// Package caption holds the two artifact analysis stages: a vision captioner that describes the
// media, and a parser that turns the description into structured JSON.
package caption

import (
	"context"
	"encoding/json"
)

type Caption struct {
	Text    string
	ModelID string
}

type Parsed struct {
	Structured json.RawMessage
	ModelID    string
}

type Captioner interface {
	Caption(ctx context.Context, url, mediaType string) (Caption, error)
}

type Parser interface {
	// Parse classifies a caption. promptContext is free text that travels with the artifact, such as its prompt.
	Parse(ctx context.Context, text, promptContext string) (Parsed, error)
}
