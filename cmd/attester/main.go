package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/screwyprof/attester/attester/config"
	"github.com/screwyprof/attester/pkg/logger"
)

// These values are overridden at build time using -ldflags
var (
	version = "dev"
	date    = "unknown"
)

func main() {
	// A missing .env file is fine; the environment wins either way
	_ = godotenv.Load()

	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "attester",
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cliApp := &cli.App{
		Name:    "attester",
		Usage:   "rank delegates by voting power and publish daily attestations",
		Version: version + " (" + date + ")",
		Commands: []*cli.Command{
			runCommand(cfg, log),
			previewCommand(cfg, log),
			showCommand(cfg, log),
			scheduleCommand(cfg, log),
		},
	}

	if err := cliApp.RunContext(ctx, os.Args); err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "Attester failed", slog.Any("error", err))
		os.Exit(1)
	}
}
