package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"example.com/signup/internal/config"
	"example.com/signup/internal/consumer"
	"example.com/signup/internal/logging"
	httptransport "example.com/signup/internal/transport/http"
)

func main() {
	cfg := config.Load()
	config.BindFlags(pflag.CommandLine, &cfg)
	pflag.Parse()

	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("consumer stopped with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("consumer stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	if !cfg.EventsEnabled() {
		return errors.New("KAFKA_BROKERS must be set for the consumer")
	}
	if len(cfg.ConsumerTopics) == 0 {
		return errors.New("CONSUMER_TOPICS must name at least one topic")
	}

	var handler consumer.Handler = consumer.NewLogHandler(logging.Component("audit"))
	if cfg.PostgresURL != "" {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		persistence := consumer.NewPersistenceHandler(pool)
		if err := persistence.EnsureSchema(ctx); err != nil {
			return err
		}
		handler = persistence
		log.Info().Msg("persisting roster events to roster_audit")
	}

	group, ctx := errgroup.WithContext(ctx)

	metricsLogger := logging.Component("metrics")
	metricsCfg := httptransport.DefaultServerConfig(cfg.MetricsAddress)
	metricsCfg.ShutdownTimeout = 10 * time.Second
	metrics := httptransport.NewServer(metricsCfg, promhttp.Handler(), metricsLogger)
	group.Go(func() error { return metrics.Run(ctx) })

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		logger := logging.Component("consumer").With().Str("topic", topic).Logger()
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		group.Go(func() error {
			defer reader.Close()

			logger.Info().Str("group", cfg.ConsumerGroupID).Msg("consumer started")
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume %s: %w", topic, err)
			}
			return nil
		})
	}

	return group.Wait()
}
