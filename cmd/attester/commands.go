package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/attester/bootstrap"
	"github.com/screwyprof/attester/attester/config"
	"github.com/screwyprof/attester/attester/sink/filesink"
	"github.com/screwyprof/attester/attester/store/pgxstore"
	"github.com/screwyprof/attester/pkg/app"
	"github.com/screwyprof/attester/pkg/pgxdb"
)

var dateFlag = &cli.StringFlag{
	Name:  "date",
	Usage: "data day as YYYY-MM-DD (default: yesterday UTC)",
}

var pipelineFlag = &cli.StringFlag{
	Name:  "pipeline",
	Usage: "without_partial_vp or with_partial_vp",
	Value: string(attester.WithPartialVP),
}

func runCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "compute and publish one day, then advance the checkpoint",
		Flags: []cli.Flag{dateFlag},
		Action: func(c *cli.Context) error {
			day, err := parseDay(c.String("date"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.RunTimeout)
			defer cancel()

			return withService(ctx, cfg, log, prometheus.NewRegistry(), func(service *attester.Service, _ *pgxpool.Pool) error {
				var result attester.Result
				if day.IsZero() {
					result, err = service.RunLatest(ctx)
				} else {
					result, err = service.Run(ctx, day)
				}
				if err != nil {
					return err
				}
				logResult(ctx, log, "Attestations published", result)
				return nil
			})
		},
	}
}

func previewCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "preview",
		Usage: "compute one day against the last published snapshot without publishing",
		Flags: []cli.Flag{dateFlag},
		Action: func(c *cli.Context) error {
			day, err := parseDay(c.String("date"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, cfg.RunTimeout)
			defer cancel()

			return withService(ctx, cfg, log, prometheus.NewRegistry(), func(service *attester.Service, _ *pgxpool.Pool) error {
				if day.IsZero() {
					day = service.LatestDate()
				}
				baseline, err := service.Baseline(ctx)
				if err != nil {
					return err
				}
				result, err := service.Compute(ctx, day, baseline)
				if err != nil {
					return err
				}
				logResult(ctx, log, "Preview computed", result)
				return printJSON(summarize(result))
			})
		},
	}
}

func showCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "print a published ranking",
		Flags: []cli.Flag{dateFlag, pipelineFlag},
		Action: func(c *cli.Context) error {
			pipeline, err := attester.ParsePipeline(c.String("pipeline"))
			if err != nil {
				return err
			}
			day, err := parseDay(c.String("date"))
			if err != nil {
				return err
			}

			pool, err := pgxdb.NewConnection(c.Context, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			store, closeStore := pgxstore.New(pool)
			defer closeStore()

			if day.IsZero() {
				checkpoint, err := store.Checkpoint(c.Context)
				if err != nil {
					return err
				}
				day = checkpoint.Date
			}

			ranked, err := store.RankedDelegates(c.Context, pipeline, day)
			if err != nil {
				return err
			}
			log.DebugContext(c.Context, "Ranking loaded",
				slog.String("pipeline", pipeline.String()),
				slog.String("date", day.Format(time.DateOnly)),
				slog.Int("delegates", len(ranked)),
			)

			rows := make([]rankedRow, len(ranked))
			for i, r := range ranked {
				rows[i] = rankedRow{
					Rank:        r.Rank,
					Delegate:    r.Delegate.String(),
					Direct:      filesink.Tokens(r.DirectVotingPower),
					Advanced:    filesink.Tokens(r.AdvancedVotingPower),
					VotingPower: filesink.Tokens(r.TotalVotingPower),
				}
			}
			return printJSON(rows)
		},
	}
}

func scheduleCommand(cfg config.Config, log *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "schedule",
		Usage: "publish every day as soon as it is ingested and serve metrics",
		Action: func(c *cli.Context) error {
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			return withService(c.Context, cfg, log, reg, func(service *attester.Service, _ *pgxpool.Pool) error {
				mux := http.NewServeMux()
				mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
				metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				log.InfoContext(c.Context, "Serving metrics", slog.String("addr", cfg.MetricsAddr))

				return app.New().
					WithService(app.HTTPServer(metricsServer, 10*time.Second)).
					WithService(schedulerService(service, cfg, log)).
					Run(c.Context)
			})
		},
	}
}

func schedulerService(service *attester.Service, cfg config.Config, log *slog.Logger) app.Service {
	return app.ServiceFunc(func(ctx context.Context) error {
		scheduler := attester.NewScheduler(timeoutRunner{service: service, timeout: cfg.RunTimeout},
			attester.WithInterval(cfg.ScheduleInterval),
		)
		events, done := scheduler.Start(ctx)
		closeSubscriber := setupEventLogging(ctx, events, log)
		defer closeSubscriber()

		<-done
		return ctx.Err()
	})
}

// timeoutRunner bounds each scheduled run
type timeoutRunner struct {
	service *attester.Service
	timeout time.Duration
}

func (r timeoutRunner) RunLatest(ctx context.Context) (attester.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.service.RunLatest(ctx)
}

func withService(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer, fn func(*attester.Service, *pgxpool.Pool) error) error {
	pool, err := pgxdb.NewConnection(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	service, closeService, err := bootstrap.Service(ctx, cfg, pool, reg, log)
	if err != nil {
		return err
	}
	defer closeService()

	return fn(service, pool)
}

func setupEventLogging(ctx context.Context, events <-chan attester.Event, log *slog.Logger) func() {
	return attester.NewSubscriber(events,
		attester.OnSchedulerStarted(func(event attester.SchedulerStarted) {
			log.InfoContext(ctx, "Scheduler started", slog.Duration("interval", event.Interval))
		}),
		attester.OnRunCompleted(func(event attester.RunCompleted) {
			logResult(ctx, log, "Attestations published", event.Result)
		}),
		attester.OnRunSkipped(func(event attester.RunSkipped) {
			log.InfoContext(ctx, "Run skipped", slog.String("reason", event.Reason.Error()))
		}),
		attester.OnRunFailed(func(event attester.RunFailed) {
			log.ErrorContext(ctx, "Run failed", slog.Any("error", event.Err))
		}),
		attester.OnSchedulerShutdown(func(event attester.SchedulerShutdown) {
			log.InfoContext(ctx, "Scheduler stopped", slog.String("reason", event.Reason.Error()))
		}),
	)
}

func logResult(ctx context.Context, log *slog.Logger, msg string, result attester.Result) {
	attrs := []any{
		slog.String("runID", result.RunID.String()),
		slog.String("date", result.Date.Format(time.DateOnly)),
		slog.Int("proxyLookups", result.ProxyLookups),
		slog.Duration("duration", result.Duration),
	}
	for _, pa := range result.Pipelines {
		attrs = append(attrs, slog.Group(pa.Pipeline.String(),
			slog.Int("ranked", len(pa.Ranked)),
			slog.Int("issued", len(pa.Diff.Issue)),
			slog.Int("revoked", len(pa.Diff.Revoke)),
		))
	}
	log.InfoContext(ctx, msg, attrs...)
}

type rankedRow struct {
	Rank        int    `json:"rank"`
	Delegate    string `json:"delegate"`
	Direct      string `json:"direct"`
	Advanced    string `json:"advanced"`
	VotingPower string `json:"voting_power"`
}

type pipelineSummary struct {
	Pipeline string   `json:"pipeline"`
	Ranked   int      `json:"ranked"`
	Issue    []string `json:"issue"`
	Revoke   []string `json:"revoke"`
}

func summarize(result attester.Result) []pipelineSummary {
	out := make([]pipelineSummary, len(result.Pipelines))
	for i, pa := range result.Pipelines {
		s := pipelineSummary{
			Pipeline: pa.Pipeline.String(),
			Ranked:   len(pa.Ranked),
			Issue:    make([]string, len(pa.Diff.Issue)),
			Revoke:   make([]string, len(pa.Diff.Revoke)),
		}
		for j, a := range pa.Diff.Issue {
			s.Issue[j] = a.String()
		}
		for j, a := range pa.Diff.Revoke {
			s.Revoke[j] = a.String()
		}
		out[i] = s
	}
	return out
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date %q: %w", s, err)
	}
	return d, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
