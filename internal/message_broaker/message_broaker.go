// Package message_broaker carries job wake-up notices between API instances and workers.
// A lost notice only delays a job until the next poll, the job table stays the source of truth.
package message_broaker

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/RezaEskandarii/genfire/types"
)

type MessageBroker interface {
	Publish(ctx context.Context, message []byte) error
	Consume(ctx context.Context) (<-chan []byte, error)
	Close() error
}

// JobNotice tells workers that a job became claimable.
type JobNotice struct {
	JobID      int64         `json:"job_id"`
	Kind       types.JobKind `json:"kind"`
	ResourceID string        `json:"resource_id"`
}

func EncodeNotice(n JobNotice) ([]byte, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job notice: %w", err)
	}
	return b, nil
}

func DecodeNotice(b []byte) (JobNotice, error) {
	var n JobNotice
	if err := json.Unmarshal(b, &n); err != nil {
		return JobNotice{}, fmt.Errorf("failed to decode job notice: %w", err)
	}
	return n, nil
}
