package types

import (
	"github.com/RezaEskandarii/genfire/internal/state"
	"time"
)

// JobKind selects the handler a worker runs for a job.
type JobKind string

const (
	JobKindCaption    JobKind = "caption"
	JobKindGeneration JobKind = "generation"
)

func (k JobKind) String() string {
	return string(k)
}

// Job is one queue-backed unit of work. ResourceID points at the artifact or generation it processes.
type Job struct {
	ID          int64           `json:"id"`
	Kind        JobKind         `json:"kind"`
	ResourceID  string          `json:"resource_id"`
	Status      state.JobStatus `json:"status"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAfter    *time.Time      `json:"run_after,omitempty"`
	Error       string          `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}

// Lease identifies one claim of a job. Writes made under a lease that a later claim replaced
// change nothing.
type Lease struct {
	JobID    int64
	LockedAt time.Time
}

// Lease returns the lease of a claimed job.
func (j Job) Lease() Lease {
	l := Lease{JobID: j.ID}
	if j.LockedAt != nil {
		l.LockedAt = *j.LockedAt
	}
	return l
}

// Holds reports whether lease is still the current claim on the job.
func (j Job) Holds(lease Lease) bool {
	return j.Status == state.StatusProcessing && j.LockedAt != nil && j.LockedAt.Equal(lease.LockedAt)
}

// Claimable is the claim predicate evaluated in memory. The Postgres claim query encodes the same rules.
func (j Job) Claimable(now time.Time, lockTTL time.Duration) bool {
	if j.Attempts >= j.MaxAttempts {
		return false
	}
	if j.RunAfter != nil && j.RunAfter.After(now) {
		return false
	}
	switch {
	case j.Status == state.StatusQueued && j.LockedAt == nil:
		return true
	case j.Status == state.StatusFailed && j.LockedAt == nil:
		return true
	case j.Status == state.StatusProcessing && j.LockExpired(now, lockTTL):
		return true
	}
	return false
}

// LockExpired reports whether the lease is older than lockTTL and may be taken over.
func (j Job) LockExpired(now time.Time, lockTTL time.Duration) bool {
	return j.LockedAt != nil && j.LockedAt.Before(now.Add(-lockTTL))
}

// ShouldRetry is evaluated after a claim already counted the attempt.
func (j Job) ShouldRetry() bool {
	return j.Attempts < j.MaxAttempts
}
