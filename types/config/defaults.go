package config

import (
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/logger"
	"time"
)

const (
	DefaultWorkerConcurrency = 4
	DefaultBatchSize         = 10
	DefaultPollInterval      = 5 * time.Second
	DefaultStaleListLimit    = 50
	DefaultStorageDriver     = Postgres
	DefaultGenerationMode    = Durable

	DefaultRateLimit       = 20
	DefaultRateLimitWindow = time.Hour
	DefaultMaxOutputs      = 4
	DefaultOutputDelay     = 2 * time.Second

	DefaultTriggerTimeout  = 5 * time.Second
	DefaultTriggerAttempts = 3
	DefaultTriggerBackoff  = time.Second

	DefaultStuckAfter = 15 * time.Minute

	DefaultStaleReportSchedule  = "@every 1m"
	DefaultStuckSweepSchedule   = "@every 5m"
	DefaultCounterPurgeSchedule = "@every 10m"

	DefaultServerPort = 8080
	DefaultTokenTTL   = 12 * time.Hour
)

var DefaultProviderOrder = []string{"gemini", "openai", "replicate"}

func defaults(instance string) *GenfireConfig {
	return &GenfireConfig{
		Instance:      instance,
		StorageDriver: DefaultStorageDriver,
		Queue: QueueConfig{
			BatchSize:      DefaultBatchSize,
			MaxAttempts:    constants.MaxAttempts,
			LockTTL:        constants.DefaultLockTTL,
			RetryDelay:     constants.DefaultRetryDelay,
			StaleListLimit: DefaultStaleListLimit,
		},
		Worker: WorkerConfig{
			Concurrency:  DefaultWorkerConcurrency,
			PollInterval: DefaultPollInterval,
		},
		Maintenance: MaintenanceConfig{
			StaleReportSchedule:  DefaultStaleReportSchedule,
			StuckSweepSchedule:   DefaultStuckSweepSchedule,
			CounterPurgeSchedule: DefaultCounterPurgeSchedule,
			StuckAfter:           DefaultStuckAfter,
		},
		Generation: GenerationConfig{
			Mode:            DefaultGenerationMode,
			RateLimit:       DefaultRateLimit,
			RateLimitWindow: DefaultRateLimitWindow,
			MaxOutputs:      DefaultMaxOutputs,
			OutputDelay:     DefaultOutputDelay,
			TriggerTimeout:  DefaultTriggerTimeout,
			TriggerAttempts: DefaultTriggerAttempts,
			TriggerBackoff:  DefaultTriggerBackoff,
		},
		Providers: ProvidersConfig{
			Order:       append([]string(nil), DefaultProviderOrder...),
			MaxAttempts: constants.ProviderMaxAttempts,
			BaseBackoff: constants.ProviderBaseBackoff,
		},
		Server: ServerConfig{
			Port:     DefaultServerPort,
			TokenTTL: DefaultTokenTTL,
		},
		RabbitMQ: RabbitMQConfig{
			Exchange: "genfire",
			Queue:    "genfire.jobs",
		},
		Log: logger.DefaultConfig(),
	}
}
