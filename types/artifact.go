package types

import (
	"encoding/json"
	"time"
)

// Artifact is a produced media file the caption pipeline describes and classifies.
type Artifact struct {
	ID           string     `json:"id"`
	GenerationID string     `json:"generation_id,omitempty"`
	URL          string     `json:"url"`
	MediaType    string     `json:"media_type"`
	Prompt       string     `json:"prompt,omitempty"`
	Deleted      bool       `json:"deleted"`
	CreatedAt    time.Time  `json:"created_at"`
	AnalyzedAt   *time.Time `json:"analyzed_at,omitempty"`
}

// ArtifactAnalysis holds the two pipeline stage outputs.
type ArtifactAnalysis struct {
	Caption      string          `json:"caption"`
	CaptionModel string          `json:"caption_model"`
	Structured   json.RawMessage `json:"structured"`
	ParserModel  string          `json:"parser_model"`
}
