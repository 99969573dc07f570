package app

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/RezaEskandarii/genfire/client"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/RezaEskandarii/genfire/internal/db"
	"github.com/RezaEskandarii/genfire/internal/lock"
	"github.com/RezaEskandarii/genfire/internal/message_broaker"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/RezaEskandarii/genfire/internal/store"
	"github.com/RezaEskandarii/genfire/internal/store/memory"
	"github.com/RezaEskandarii/genfire/internal/store/postgres"
	redisstore "github.com/RezaEskandarii/genfire/internal/store/redis"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Container holds all application dependencies. It is the single source of truth
// for dependency injection and ensures connections and services are created once.
type Container struct {
	Config *config.GenfireConfig
	Logger *zap.Logger

	// Storage connections (created once, shared by all stores). Both are nil for the memory driver.
	DB    *sql.DB
	Redis *redis.Client

	JobStore        store.JobStore
	GenerationStore store.GenerationStore
	ArtifactStore   store.ArtifactStore
	RateLimitStore  store.RateLimitStore
	UserStore       store.UserStore

	// Infrastructure
	LockManager   lock.DistributedLockManager
	MessageBroker message_broaker.MessageBroker
	Orchestrator  *provider.Orchestrator

	// Job handlers and managers
	Handlers    *config.JobHandler
	Queue       *client.JobQueue
	Processor   *client.JobProcessor
	Worker      *client.Worker
	Runner      *client.GenerationRunner
	Dispatcher  *client.GenerationDispatcher
	Captions    *client.CaptionPipeline
	Maintenance *client.Maintenance
	JobManager  *client.JobManager
}

// NewContainer creates and wires all dependencies. Single entry point for DI.
// Call this once per application lifecycle.
// Pass optional WithDB, WithRedis to inject connections for testing.
func NewContainer(ctx context.Context, cfg *config.GenfireConfig, opts ...ContainerOption) (*Container, error) {
	opt := &containerConfig{}
	for _, o := range opts {
		o(opt)
	}
	logger := opt.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("instance", cfg.Instance))

	c := &Container{Config: cfg, Logger: logger, DB: opt.db, Redis: opt.redis}
	if err := c.initStorage(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := c.initBroker(opt.broker); err != nil {
		c.Close()
		return nil, fmt.Errorf("init message broker: %w", err)
	}

	providers := opt.providers
	if providers == nil {
		built, err := buildProviders(ctx, cfg.Providers, opt.httpClient, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("init providers: %w", err)
		}
		providers = built
	}
	if len(providers) == 0 {
		logger.Warn("no generation provider has credentials, generations will fail")
	}
	c.Orchestrator = provider.NewOrchestrator(providers,
		provider.WithMaxAttempts(cfg.Providers.MaxAttempts),
		provider.WithBackoff(cfg.Providers.BaseBackoff, nil),
		provider.WithOutputDelay(cfg.Generation.OutputDelay),
		provider.WithLogger(logger.Named("orchestrator")))

	c.Queue = client.NewJobQueue(c.JobStore, c.MessageBroker, cfg.Queue, logger.Named("queue"))
	c.Runner = client.NewGenerationRunner(c.GenerationStore, c.ArtifactStore, c.Queue, c.Orchestrator, logger.Named("generation"))

	c.Handlers = cfg.Handlers
	if c.Handlers == nil {
		c.Handlers = config.NewJobHandler()
	}
	if err := c.Handlers.Register(types.JobKindGeneration, c.Runner.Handle); err != nil {
		c.Close()
		return nil, err
	}

	captioner, parser := opt.captioner, opt.parser
	if captioner == nil || parser == nil {
		captioner, parser = buildCaptioner(cfg.Caption, opt.httpClient)
	}
	if captioner != nil && parser != nil {
		c.Captions = client.NewCaptionPipeline(c.ArtifactStore, captioner, parser, logger.Named("caption"))
		if err := c.Handlers.Register(types.JobKindCaption, c.Captions.Handle); err != nil {
			c.Close()
			return nil, err
		}
	} else if !c.Handlers.Exists(types.JobKindCaption) {
		logger.Warn("caption pipeline disabled, no api key")
		c.Runner.WithoutCaptions()
	}

	var trigger client.Trigger
	if cfg.Generation.Mode == config.BestEffort {
		trigger = client.NewHTTPTrigger(cfg.Generation, opt.httpClient, logger.Named("trigger"))
	}
	limiter := client.NewRateLimiter(c.RateLimitStore, string(types.JobKindGeneration), cfg.Generation.RateLimit, cfg.Generation.RateLimitWindow)
	c.Dispatcher = client.NewGenerationDispatcher(c.GenerationStore, c.Queue, trigger, limiter, cfg.Generation, c.Orchestrator.Providers(), logger.Named("dispatcher"))

	c.Processor = client.NewJobProcessor(c.Queue, c.Handlers, logger.Named("processor"))
	c.Worker = client.NewWorker(c.Queue, c.Processor, c.MessageBroker, cfg.Queue, cfg.Worker, logger.Named("worker"))
	c.Maintenance = client.NewMaintenance(c.Queue, c.GenerationStore, c.RateLimitStore, c.LockManager, cfg.Maintenance, logger.Named("maintenance"))
	c.JobManager = client.NewJobManager(c.Queue, c.Processor, c.Worker, c.Dispatcher, c.Runner)

	return c, nil
}

// initStorage opens the connections the driver needs and creates the stores over them.
func (c *Container) initStorage(ctx context.Context) error {
	cfg := c.Config
	switch cfg.StorageDriver {
	case config.Memory:
		s := memory.NewStore()
		c.JobStore = s.Jobs()
		c.GenerationStore = s.Generations()
		c.ArtifactStore = s.Artifacts()
		c.RateLimitStore = s.RateLimits()
		c.UserStore = s.Users()
		c.LockManager = lock.NewMemoryDistributedLockManager()
		return nil

	case config.Postgres, config.Redis:
		if c.DB == nil {
			sqlDB, err := openPostgresDB(ctx, cfg.Postgres)
			if err != nil {
				return err
			}
			c.DB = sqlDB
		}
		c.JobStore = postgres.NewPostgresJobStore(c.DB)
		c.GenerationStore = postgres.NewPostgresGenerationStore(c.DB)
		c.ArtifactStore = postgres.NewPostgresArtifactStore(c.DB)
		c.UserStore = postgres.NewPostgresUserStore(c.DB)

		if cfg.StorageDriver == config.Postgres {
			c.RateLimitStore = postgres.NewPostgresRateLimitStore(c.DB)
			c.LockManager = lock.NewPostgresDistributedLockManager(c.DB)
			return nil
		}

		if c.Redis == nil {
			rdb, err := openRedis(ctx, cfg.Redis)
			if err != nil {
				return err
			}
			c.Redis = rdb
		}
		c.RateLimitStore = redisstore.NewRedisRateLimitStore(c.Redis)
		c.LockManager = lock.NewRedisDistributedLockManager(c.Redis, constants.DefaultLockTTL)
		return nil

	default:
		return fmt.Errorf("unsupported storage driver: %v", cfg.StorageDriver)
	}
}

// initBroker connects to RabbitMQ when configured. The memory driver falls back to an
// in-process broker; other drivers poll only.
func (c *Container) initBroker(injected message_broaker.MessageBroker) error {
	if injected != nil {
		c.MessageBroker = injected
		return nil
	}
	if c.Config.RabbitMQ.URL != "" {
		broker, err := message_broaker.NewRabbitMQ(c.Config.RabbitMQ.URL, c.Config.RabbitMQ.Exchange, c.Config.RabbitMQ.Queue)
		if err != nil {
			return err
		}
		c.MessageBroker = broker
		return nil
	}
	if c.Config.StorageDriver == config.Memory {
		c.MessageBroker = message_broaker.NewMemory()
	}
	return nil
}

// Migrate applies the schema. It is a no-op for the memory driver.
func (c *Container) Migrate(ctx context.Context) error {
	if c.DB == nil {
		return nil
	}
	return db.Init(ctx, c.DB, c.LockManager, c.Logger.Named("migrations"))
}

// SeedOperator creates the configured operator account when it does not exist yet.
func (c *Container) SeedOperator(ctx context.Context) error {
	username, password := c.Config.Server.AdminUsername, c.Config.Server.AdminPassword
	if username == "" || password == "" {
		return nil
	}
	existing, err := c.UserStore.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("failed to look up operator: %w", err)
	}
	if existing != nil {
		return nil
	}
	if _, err := c.UserStore.Create(ctx, username, password); err != nil {
		return fmt.Errorf("failed to create operator: %w", err)
	}
	c.Logger.Info("operator account created", zap.String("username", username))
	return nil
}

// Close releases connections. Safe to call on a partly built container.
func (c *Container) Close() {
	if c.MessageBroker != nil {
		if err := c.MessageBroker.Close(); err != nil {
			c.Logger.Warn("failed to close message broker", zap.Error(err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("failed to close redis client", zap.Error(err))
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			c.Logger.Warn("failed to close database", zap.Error(err))
		}
	}
}
