package app

import (
	"database/sql"
	"github.com/RezaEskandarii/genfire/internal/caption"
	"github.com/RezaEskandarii/genfire/internal/message_broaker"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"net/http"
)

// ContainerOption configures Container creation. Used for testing and customization.
type ContainerOption func(*containerConfig)

type containerConfig struct {
	// Optional: inject connections instead of opening them from config
	db     *sql.DB
	redis  *redis.Client
	broker message_broaker.MessageBroker

	logger     *zap.Logger
	httpClient *http.Client

	providers []provider.Adapter
	captioner caption.Captioner
	parser    caption.Parser
}

// WithDB injects a custom database connection. Useful for testing.
func WithDB(db *sql.DB) ContainerOption {
	return func(c *containerConfig) {
		c.db = db
	}
}

// WithRedis injects a custom Redis client. Useful for testing.
func WithRedis(redis *redis.Client) ContainerOption {
	return func(c *containerConfig) {
		c.redis = redis
	}
}

// WithMessageBroker replaces the broker built from the RabbitMQ settings.
func WithMessageBroker(broker message_broaker.MessageBroker) ContainerOption {
	return func(c *containerConfig) {
		c.broker = broker
	}
}

func WithLogger(logger *zap.Logger) ContainerOption {
	return func(c *containerConfig) {
		c.logger = logger
	}
}

// WithHTTPClient sets the client used by the REST providers and the trigger.
func WithHTTPClient(client *http.Client) ContainerOption {
	return func(c *containerConfig) {
		c.httpClient = client
	}
}

// WithProviders replaces the providers built from config. Order is the fallback priority.
func WithProviders(providers ...provider.Adapter) ContainerOption {
	return func(c *containerConfig) {
		c.providers = providers
	}
}

// WithCaptioner replaces the OpenAI caption and parser stages.
func WithCaptioner(captioner caption.Captioner, parser caption.Parser) ContainerOption {
	return func(c *containerConfig) {
		c.captioner = captioner
		c.parser = parser
	}
}
