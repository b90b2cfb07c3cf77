package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/screwyprof/attester/migrator"
	"github.com/screwyprof/attester/migrator/config"
	"github.com/screwyprof/attester/pkg/logger"
	"github.com/screwyprof/attester/pkg/pgxdb"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	_ = godotenv.Load()

	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "migrator",
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	up := upCommand(cfg, log)
	cliApp := &cli.App{
		Name:    "migrator",
		Usage:   "apply schema migrations and seed checkpoints",
		Version: version + " (" + date + ")",
		Action:  up.Action,
		Commands: []*cli.Command{
			up,
			checkpointCommand(cfg, log),
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "Migrator failed", slog.Any("error", err))
		os.Exit(1)
	}
}

// upCommand migrates the schema, then sets the checkpoints configured in the environment
func upCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "up",
		Usage: "apply pending migrations",
		Action: func(c *cli.Context) error {
			ingest, attest, err := cfg.Checkpoints()
			if err != nil {
				return err
			}

			return withPool(c.Context, cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
				log.InfoContext(ctx, "Applying database migrations", slog.String("dir", cfg.MigrationsDir))
				if err := migrator.ApplyMigrations(pool, cfg.MigrationsDir); err != nil {
					return err
				}

				if err := initCheckpoint(ctx, log, "ingest", ingest, pool, migrator.InitializeIngestCheckpoint); err != nil {
					return err
				}
				if err := initCheckpoint(ctx, log, "attester", attest, pool, migrator.InitializeAttesterCheckpoint); err != nil {
					return err
				}

				log.InfoContext(ctx, "Database is up to date")
				return nil
			})
		},
	}
}

// checkpointCommand moves the ingest checkpoint, e.g. to re-ingest a range of days
func checkpointCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "checkpoint",
		Usage:     "overwrite the ingest checkpoint",
		ArgsUsage: "YYYY-MM-DD",
		Action: func(c *cli.Context) error {
			day, err := time.Parse(time.DateOnly, c.Args().First())
			if err != nil {
				return cli.Exit("expected a date as YYYY-MM-DD", 2)
			}

			return withPool(c.Context, cfg, func(ctx context.Context, pool *pgxpool.Pool) error {
				if err := migrator.SetIngestCheckpoint(ctx, pool, day); err != nil {
					return err
				}
				log.InfoContext(ctx, "Ingest checkpoint moved", slog.String("checkpoint", day.Format(time.DateOnly)))
				return nil
			})
		},
	}
}

func withPool(ctx context.Context, cfg config.Config, fn func(context.Context, *pgxpool.Pool) error) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.OperationTimeout)
	defer cancel()

	pool, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, pool)
}

func initCheckpoint(
	ctx context.Context,
	log *slog.Logger,
	name string,
	day time.Time,
	pool *pgxpool.Pool,
	set func(context.Context, *pgxpool.Pool, time.Time) error,
) error {
	if day.IsZero() {
		return nil
	}
	log.InfoContext(ctx, "Initializing checkpoint", slog.String("name", name), slog.String("checkpoint", day.Format(time.DateOnly)))
	return set(ctx, pool, day)
}
