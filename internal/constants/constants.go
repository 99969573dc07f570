package constants

import "time"

// Advisory lock ids. Each one guards a task that only one instance may run at a time.
const (
	MigrationLock = iota + 7301
	StaleLockReportLock
	StuckGenerationLock
	RateLimitCleanupLock
)

var Locks = []int{
	MigrationLock,
	StaleLockReportLock,
	StuckGenerationLock,
	RateLimitCleanupLock,
}

const (
	MaxAttempts    = 3
	MaxErrorLength = 1000

	DefaultLockTTL    = 5 * time.Minute
	DefaultRetryDelay = 30 * time.Second

	// ProviderMaxAttempts bounds same-provider retries on rate limiting.
	ProviderMaxAttempts = 5
	ProviderBaseBackoff = time.Second

	TriggerSecretHeader = "X-Trigger-Secret"
	RequestorHeader     = "X-Requestor-ID"

	Schema = "genfire_schema"
)
