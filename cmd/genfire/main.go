package main

import (
	"context"
	"github.com/urfave/cli/v3"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "genfire",
		Usage: "media generation service with a durable job queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				Value:   "genfire.yaml",
				Sources: cli.EnvVars("GENFIRE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "env file loaded before the config",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API, a worker and the maintenance sweeps",
				Action: serveAction,
			},
			{
				Name:  "work",
				Usage: "run a worker without the HTTP API",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "claim and process a single batch, then exit",
					},
				},
				Action: workAction,
			},
			{
				Name:   "status",
				Usage:  "print queue counts and stale locks",
				Action: statusAction,
			},
			{
				Name:  "reprocess",
				Usage: "claim and run the newest job of a resource now",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "kind",
						Usage: "job kind (generation or caption)",
						Value: "generation",
					},
					&cli.StringFlag{
						Name:     "resource",
						Usage:    "generation or artifact id",
						Required: true,
					},
				},
				Action: reprocessAction,
			},
			{
				Name:  "cancel",
				Usage: "cancel a queued or failed job",
				Flags: []cli.Flag{
					&cli.Int64Flag{
						Name:     "job",
						Usage:    "job id",
						Required: true,
					},
				},
				Action: cancelAction,
			},
			{
				Name:   "migrate",
				Usage:  "apply the database schema",
				Action: migrateAction,
			},
			{
				Name:  "generate",
				Usage: "create a generation and run it in this process",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "requestor",
						Usage:    "requestor id that owns the generation",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "prompt",
						Usage:    "prompt text",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "count",
						Usage: "number of outputs",
						Value: 1,
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "preferred provider",
					},
				},
				Action: generateAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
