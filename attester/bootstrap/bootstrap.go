// Package bootstrap assembles the production attester from its configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/screwyprof/attester/attester"
	"github.com/screwyprof/attester/attester/config"
	"github.com/screwyprof/attester/attester/sink/filesink"
	"github.com/screwyprof/attester/attester/sink/kafkasink"
	"github.com/screwyprof/attester/attester/store/pgxstore"
	"github.com/screwyprof/attester/pkg/alligator"
)

var ErrSetupFailed = errors.New("attester setup failed")

// Service wires the warehouse store, the Alligator resolver and the configured sinks.
// Artifacts go to the database first, then to files and Kafka when configured.
// The returned closer releases the RPC client and the producer; the pool stays with the caller.
func Service(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, reg prometheus.Registerer, log *slog.Logger) (*attester.Service, func(), error) {
	resolver, closeResolver, err := alligator.Dial(ctx, cfg.EthRPCURL, cfg.AlligatorAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
	}
	closers := []func(){closeResolver}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, _ := pgxstore.New(pool)
	publishers := []attester.Publisher{store}

	if cfg.OutputDir != "" {
		publishers = append(publishers, filesink.New(cfg.OutputDir))
		log.InfoContext(ctx, "File sink enabled", slog.String("dir", cfg.OutputDir))
	}

	if len(cfg.KafkaBrokers) > 0 {
		sink, closeSink, err := kafkasink.Dial(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("%w: %w", ErrSetupFailed, err)
		}
		closers = append(closers, closeSink)
		publishers = append(publishers, sink)
		log.InfoContext(ctx, "Kafka sink enabled",
			slog.Any("brokers", cfg.KafkaBrokers),
			slog.String("topic", cfg.KafkaTopic),
		)
	}

	service := attester.NewService(store, store, store, resolver,
		attester.WithPublishers(publishers...),
		attester.WithRankLimit(cfg.RankLimit),
		attester.WithValidityFilter(cfg.FilterValidity),
		attester.WithMetrics(attester.NewMetrics(reg)),
	)

	return service, closeAll, nil
}
