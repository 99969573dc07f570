package types

import (
	"github.com/RezaEskandarii/genfire/internal/state"
	"time"
)

// JobOutcome is what a worker reports for one processed job.
type JobOutcome struct {
	ID     int64           `json:"id"`
	Kind   JobKind         `json:"kind"`
	Status state.JobStatus `json:"status"`
	Error  string          `json:"error,omitempty"`
}

// QueueStatus is the operational view of the job table.
type QueueStatus struct {
	Counts      map[state.JobStatus]int `json:"counts"`
	Total       int                     `json:"total"`
	StaleLocked []Job                   `json:"stale_locked"`
	LockTTL     time.Duration           `json:"lock_ttl"`
	CheckedAt   time.Time               `json:"checked_at"`
}
