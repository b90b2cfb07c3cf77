package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/screwyprof/attester/ingester"
	"github.com/screwyprof/attester/ingester/config"
	"github.com/screwyprof/attester/ingester/store/pgxstore"
	"github.com/screwyprof/attester/pkg/logger"
	"github.com/screwyprof/attester/pkg/pgxdb"
	"github.com/screwyprof/attester/pkg/subgraph"
)

func main() {
	// A missing .env file is fine; the environment wins either way
	_ = godotenv.Load()

	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
		Service:          "ingester",
	})
	slog.SetDefault(log)

	startDate, err := cfg.Start()
	if err != nil {
		log.Error("Invalid INGESTER_START_DATE", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.ErrorContext(ctx, "Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}

	store, storeCloser := pgxstore.New(db)
	defer storeCloser()

	httpClient := &http.Client{Timeout: cfg.HttpClientTimeout}
	client := subgraph.NewClient(httpClient, cfg.SubgraphURL, cfg.SubgraphAPIKey,
		subgraph.WithPageSize(cfg.SubgraphPageSize),
		subgraph.WithMaxAttempts(cfg.SubgraphAttempts),
	)

	opts := []ingester.Option{ingester.WithPollInterval(cfg.PollInterval)}
	if !startDate.IsZero() {
		opts = append(opts, ingester.WithStartDate(startDate))
	}
	service := ingester.NewService(client, store, opts...)

	log.InfoContext(ctx, "Starting subgraph ingester",
		slog.String("subgraph", cfg.SubgraphURL),
		slog.Duration("pollInterval", cfg.PollInterval),
	)
	events, done := service.Start(ctx)

	subCloser := setupEventLogging(ctx, events, log)
	defer subCloser()

	<-done
	log.InfoContext(ctx, "Ingester stopped gracefully")
}

// setupEventLogging configures event handlers using slog directly
func setupEventLogging(ctx context.Context, events <-chan ingester.Event, log *slog.Logger) func() {
	return ingester.NewSubscriber(events,
		ingester.OnBackfillStarted(func(event ingester.BackfillStarted) {
			log.InfoContext(ctx, "Backfill started",
				slog.String("startedAt", event.StartedAt.Format(logger.BritishTimeFormat)),
				slog.String("checkpoint", event.Checkpoint.Format(time.DateOnly)),
				slog.String("until", event.Until.Format(time.DateOnly)),
			)
		}),
		ingester.OnDaySynced(func(event ingester.DaySynced) {
			log.InfoContext(ctx, "Day ingested",
				slog.String("date", event.Date.Format(time.DateOnly)),
				slog.Int("delegates", event.Delegates),
				slog.Int("balances", event.Balances),
				slog.Int("subdelegations", event.Subdelegations),
			)
		}),
		ingester.OnBackfillDone(func(event ingester.BackfillDone) {
			log.InfoContext(ctx, "Backfill completed",
				slog.Int("days", event.TotalDays),
				slog.Duration("duration", event.Duration),
			)
		}),
		ingester.OnBackfillError(func(event ingester.BackfillError) {
			log.ErrorContext(ctx, "Backfill failed", slog.Any("error", event.Err))
		}),
		ingester.OnPollingStarted(func(event ingester.PollingStarted) {
			log.InfoContext(ctx, "Polling started", slog.Duration("interval", event.Interval))
		}),
		ingester.OnPollingSyncCompleted(func(event ingester.PollingSyncCompleted) {
			if event.Days > 0 {
				log.InfoContext(ctx, "Polling cycle completed",
					slog.Int("days", event.Days),
					slog.String("checkpoint", event.Checkpoint.Format(time.DateOnly)),
				)
			} else {
				log.InfoContext(ctx, "Polling cycle completed, no new days")
			}
		}),
		ingester.OnPollingShutdown(func(event ingester.PollingShutdown) {
			log.InfoContext(ctx, "Polling stopped", slog.String("reason", event.Reason.Error()))
		}),
		ingester.OnPollingError(func(event ingester.PollingError) {
			log.ErrorContext(ctx, "Polling failed", slog.Any("error", event.Err))
		}),
	)
}
