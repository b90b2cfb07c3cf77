package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/screwyprof/attester/attester/bootstrap"
	attesterconfig "github.com/screwyprof/attester/attester/config"
	"github.com/screwyprof/attester/pkg/app"
	"github.com/screwyprof/attester/pkg/logger"
	"github.com/screwyprof/attester/pkg/pgxdb"
	"github.com/screwyprof/attester/web/config"
	"github.com/screwyprof/attester/web/handler"
	"github.com/screwyprof/attester/web/store/pgxstore"
)

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
		Service:          "web",
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Attester Web API Service starting",
		slog.String("version", version),
		slog.String("date", date),
	)

	db, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		log.ErrorContext(ctx, "Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}

	finder, finderCloser := pgxstore.New(db)
	defer finderCloser()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	handler.NewGetDelegates(finder).AddRoutes(mux)
	handler.NewGetAttestations(finder).AddRoutes(mux)
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	if cfg.ExecuteEnabled {
		service, serviceCloser, err := bootstrap.Service(ctx, attesterconfig.New(), db, reg, log)
		if err != nil {
			log.ErrorContext(ctx, "Failed to set up attester", slog.Any("error", err))
			os.Exit(1)
		}
		defer serviceCloser()

		handler.NewPostExecute(service, cfg.APIKey).AddRoutes(mux)
		log.InfoContext(ctx, "Execute endpoint enabled", slog.Bool("apiKey", cfg.APIKey != ""))
	}

	addr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           logger.NewMiddleware(log)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.InfoContext(ctx, "Server started", slog.String("addr", addr))

	err = app.New().
		WithService(app.HTTPServer(server, cfg.ShutdownTimeout)).
		Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.ErrorContext(ctx, "Server failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.InfoContext(ctx, "Server exited gracefully")
}
