package types

import (
	"github.com/RezaEskandarii/genfire/internal/state"
	"github.com/stretchr/testify/assert"
	"testing"
	"time"
)

func TestJob_Claimable(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 2 * time.Minute
	ago := func(d time.Duration) *time.Time {
		v := now.Add(-d)
		return &v
	}
	later := now.Add(time.Minute)

	tests := []struct {
		name     string
		job      Job
		expected bool
	}{
		{"queued unlocked", Job{Status: state.StatusQueued, MaxAttempts: 3}, true},
		{"failed with attempts left", Job{Status: state.StatusFailed, Attempts: 1, MaxAttempts: 3}, true},
		{"failed without attempts left", Job{Status: state.StatusFailed, Attempts: 3, MaxAttempts: 3}, false},
		{"queued at max attempts", Job{Status: state.StatusQueued, Attempts: 3, MaxAttempts: 3}, false},
		{"run after in the future", Job{Status: state.StatusQueued, MaxAttempts: 3, RunAfter: &later}, false},
		{"run after in the past", Job{Status: state.StatusQueued, MaxAttempts: 3, RunAfter: ago(time.Second)}, true},
		{"locked 30s ago", Job{Status: state.StatusProcessing, Attempts: 1, MaxAttempts: 3, LockedAt: ago(30 * time.Second)}, false},
		{"locked 1m ago", Job{Status: state.StatusProcessing, Attempts: 1, MaxAttempts: 3, LockedAt: ago(time.Minute)}, false},
		{"locked 3m ago", Job{Status: state.StatusProcessing, Attempts: 1, MaxAttempts: 3, LockedAt: ago(3 * time.Minute)}, true},
		{"completed", Job{Status: state.StatusCompleted, MaxAttempts: 3}, false},
		{"cancelled", Job{Status: state.StatusCancelled, MaxAttempts: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.job.Claimable(now, ttl))
		})
	}
}

func TestJob_ShouldRetry(t *testing.T) {
	assert.True(t, Job{Attempts: 2, MaxAttempts: 3}.ShouldRetry())
	assert.False(t, Job{Attempts: 3, MaxAttempts: 3}.ShouldRetry())
}
