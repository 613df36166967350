package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/unspun/unspun/pkg/clock"
	"github.com/unspun/unspun/pkg/cmd"
	"github.com/unspun/unspun/pkg/config"
	"github.com/unspun/unspun/pkg/log"
	"github.com/unspun/unspun/pkg/otelhelper"
)

func main() {
	command := &cli.Command{
		Name:                  "unspun-runner",
		EnableShellCompletion: true,
		Usage:                 "Start a runner that executes pipeline jobs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML settings file",
				Value:   "",
				Sources: cli.EnvVars("UNSPUN_CONFIG"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces",
				Value:   false,
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "runner-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("unspun-runner").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing runner")

			clk := clock.Real{}

			store, err := config.NewStore(command.String("config"), config.DefaultRefreshInterval, clk)
			if err != nil {
				return err
			}

			settings := store.Current()
			if err := settings.Validate(); err != nil {
				return err
			}

			registry := cmd.NewRegistry(logger, settings.PluginsPath)

			eventBus := cmd.NewEventBus(settings.EventBusType, settings.KafkaBrokers, logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, settings.DatabaseURL)
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			runner := NewRunner(workerID, persistence, eventBus, store, clk, logger, registry)

			if command.Bool("tracing") {
				tracer, err := otelhelper.NewTracer(ctx, "unspun-runner")
				if err != nil {
					return err
				}

				runner.tracer = tracer
			}

			if err := runner.Start(ctx); err != nil {
				logger.ErrorContext(ctx, "Runner stopped with error", "error", err)
			}

			return nil
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}
