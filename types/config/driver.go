package config

import "fmt"

type StorageDriver int

const (
	Postgres StorageDriver = iota + 1
	// Redis keeps jobs and generations in Postgres and moves rate-limit counters and
	// singleton locks to Redis.
	Redis
	// Memory is a single-process store for tests and local runs.
	Memory
)

// String converts the StorageDriver enum to a human-readable string.
func (d StorageDriver) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case Redis:
		return "redis"
	case Memory:
		return "memory"
	}
	return "unknown"
}

func (d *StorageDriver) UnmarshalText(text []byte) error {
	switch string(text) {
	case "postgres":
		*d = Postgres
	case "redis":
		*d = Redis
	case "memory":
		*d = Memory
	default:
		return fmt.Errorf("unknown storage driver %q", string(text))
	}
	return nil
}

// GenerationMode selects how a new generation reaches a worker.
type GenerationMode int

const (
	// Durable enqueues a generation job that survives restarts.
	Durable GenerationMode = iota + 1
	// BestEffort fires the trigger endpoint and relies on the stuck sweeper for recovery.
	BestEffort
)

func (m GenerationMode) String() string {
	switch m {
	case Durable:
		return "durable"
	case BestEffort:
		return "best_effort"
	}
	return "unknown"
}

func (m *GenerationMode) UnmarshalText(text []byte) error {
	switch string(text) {
	case "durable":
		*m = Durable
	case "best_effort", "best-effort":
		*m = BestEffort
	default:
		return fmt.Errorf("unknown generation mode %q", string(text))
	}
	return nil
}
