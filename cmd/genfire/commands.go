package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/RezaEskandarii/genfire/app"
	"github.com/RezaEskandarii/genfire/internal/logger"
	"github.com/RezaEskandarii/genfire/types"
	"github.com/RezaEskandarii/genfire/types/config"
	"github.com/RezaEskandarii/genfire/web"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"io/fs"
	"os"
	"runtime"
)

// setup loads the env file and config, builds the logger and wires the container.
func setup(ctx context.Context, cmd *cli.Command) (*app.Container, error) {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	log.Info("starting",
		zap.String("command", cmd.Name),
		zap.String("instance", cfg.Instance),
		zap.String("storage_driver", cfg.StorageDriver.String()),
		zap.String("generation_mode", cfg.Generation.Mode.String()),
		zap.Int("gomaxprocs", runtime.GOMAXPROCS(0)))

	return app.NewContainer(ctx, cfg, app.WithLogger(log))
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Migrate(ctx); err != nil {
		return err
	}
	if err := c.SeedOperator(ctx); err != nil {
		return err
	}

	server := web.NewServer(c.JobManager, c.UserStore, c.Config.Server, c.Logger.Named("http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return server.Serve(gctx) })
	g.Go(func() error { return c.Worker.Start(gctx) })
	g.Go(func() error { return c.Maintenance.Start(gctx) })
	return ignoreCanceled(g.Wait())
}

func workAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if cmd.Bool("once") {
		outcomes, err := c.JobManager.Drain(ctx)
		if err != nil {
			return err
		}
		return printJSON(outcomes)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Worker.Start(gctx) })
	g.Go(func() error { return c.Maintenance.Start(gctx) })
	return ignoreCanceled(g.Wait())
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	status, err := c.JobManager.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(status)
}

func reprocessAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	outcome, err := c.JobManager.Reprocess(ctx, types.JobKind(cmd.String("kind")), cmd.String("resource"))
	if err != nil {
		return err
	}
	return printJSON(outcome)
}

func cancelAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	id := cmd.Int64("job")
	if err := c.JobManager.Cancel(ctx, id); err != nil {
		return err
	}
	fmt.Printf("job %d cancelled\n", id)
	return nil
}

func migrateAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Migrate(ctx); err != nil {
		return err
	}
	return c.SeedOperator(ctx)
}

// generateAction creates a generation and, in durable mode, runs its job right away
// instead of waiting for a worker.
func generateAction(ctx context.Context, cmd *cli.Command) error {
	c, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer c.Close()

	g, err := c.Dispatcher.Create(ctx, types.GenerationRequest{
		RequestorID: cmd.String("requestor"),
		ProviderID:  cmd.String("provider"),
		Prompt:      cmd.String("prompt"),
		OutputCount: int(cmd.Int("count")),
	})
	if err != nil {
		return err
	}

	if c.Config.Generation.Mode == config.Durable {
		outcome, err := c.JobManager.Reprocess(ctx, types.JobKindGeneration, g.ID)
		if err != nil {
			return err
		}
		c.Logger.Info("generation job finished", zap.String("status", outcome.Status.String()), zap.String("error", outcome.Error))
	}

	g, err = c.GenerationStore.FindByID(ctx, g.ID)
	if err != nil {
		return err
	}
	return printJSON(g)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
