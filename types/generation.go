package types

import (
	"github.com/RezaEskandarii/genfire/internal/state"
	"time"
)

// Generation is a user-facing creative request. It is owned by RequestorID.
type Generation struct {
	ID          string             `json:"id"`
	RequestorID string             `json:"requestor_id"`
	ProviderID  string             `json:"provider_id,omitempty"`
	Prompt      string             `json:"prompt"`
	Parameters  map[string]any     `json:"parameters,omitempty"`
	OutputCount int                `json:"output_count"`
	Outputs     []GenerationOutput `json:"outputs,omitempty"`
	Status      state.JobStatus    `json:"status"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}

type GenerationOutput struct {
	ArtifactID string `json:"artifact_id"`
	URL        string `json:"url"`
	MediaType  string `json:"media_type"`
	Provider   string `json:"provider"`
	ModelID    string `json:"model_id,omitempty"`
}

type GenerationRequest struct {
	RequestorID string         `json:"requestor_id"`
	ProviderID  string         `json:"provider_id,omitempty"`
	Prompt      string         `json:"prompt"`
	Parameters  map[string]any `json:"parameters,omitempty"`
	OutputCount int            `json:"output_count,omitempty"`
}
