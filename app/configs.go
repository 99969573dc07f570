package app

import (
	"context"
	"database/sql"
	"fmt"
	"github.com/RezaEskandarii/genfire/internal/caption"
	"github.com/RezaEskandarii/genfire/internal/provider"
	"github.com/RezaEskandarii/genfire/internal/provider/gemini"
	"github.com/RezaEskandarii/genfire/internal/provider/openai"
	"github.com/RezaEskandarii/genfire/internal/provider/replicate"
	"github.com/RezaEskandarii/genfire/types/config"
	_ "github.com/lib/pq"
	"github.com/openai/openai-go/v3/option"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"net/http"
)

func openPostgresDB(ctx context.Context, cfg config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.ConnectionUrl)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(max(cfg.MaxOpenConns/4, 1))
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func openRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}

// buildProviders returns the configured providers in priority order. A provider without
// credentials is left out of the chain.
func buildProviders(ctx context.Context, cfg config.ProvidersConfig, client *http.Client, logger *zap.Logger) ([]provider.Adapter, error) {
	var adapters []provider.Adapter
	for _, name := range cfg.Order {
		switch name {
		case gemini.Name:
			if cfg.Gemini.APIKey == "" {
				logger.Warn("provider skipped, no api key", zap.String("provider", name))
				continue
			}
			a, err := gemini.New(ctx, gemini.Config{
				APIKey:        cfg.Gemini.APIKey,
				BaseURL:       cfg.Gemini.BaseURL,
				Model:         cfg.Gemini.Model,
				FallbackModel: cfg.Gemini.FallbackModel,
			}, client, logger)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)

		case openai.Name:
			if cfg.OpenAI.APIKey == "" {
				logger.Warn("provider skipped, no api key", zap.String("provider", name))
				continue
			}
			var opts []option.RequestOption
			if client != nil {
				opts = append(opts, option.WithHTTPClient(client))
			}
			adapters = append(adapters, openai.New(openai.Config{
				APIKey:  cfg.OpenAI.APIKey,
				BaseURL: cfg.OpenAI.BaseURL,
				Model:   cfg.OpenAI.Model,
				Size:    cfg.OpenAI.Size,
			}, opts...))

		case replicate.Name:
			if cfg.Replicate.APIToken == "" {
				logger.Warn("provider skipped, no api token", zap.String("provider", name))
				continue
			}
			a, err := replicate.New(replicate.Config{
				APIToken:     cfg.Replicate.APIToken,
				BaseURL:      cfg.Replicate.BaseURL,
				Model:        cfg.Replicate.Model,
				PollInterval: cfg.Replicate.PollInterval,
				PollAttempts: cfg.Replicate.PollAttempts,
			}, client)
			if err != nil {
				return nil, err
			}
			adapters = append(adapters, a)
		}
	}
	return adapters, nil
}

// buildCaptioner returns nil stages when no key is configured.
func buildCaptioner(cfg config.CaptionConfig, client *http.Client) (caption.Captioner, caption.Parser) {
	if cfg.APIKey == "" {
		return nil, nil
	}
	var opts []option.RequestOption
	if client != nil {
		opts = append(opts, option.WithHTTPClient(client))
	}
	c := caption.NewOpenAI(caption.OpenAIConfig{
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		CaptionModel: cfg.CaptionModel,
		ParserModel:  cfg.ParserModel,
	}, opts...)
	return c, c
}
