package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"example.com/signup/internal/api"
	"example.com/signup/internal/config"
	"example.com/signup/internal/domain"
	"example.com/signup/internal/logging"
	"example.com/signup/internal/outbox"
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
		log.Error().Err(err).Msg("signup service stopped with error")
		stop()
		os.Exit(1)
	}
	log.Info().Msg("signup service stopped")
}

func run(ctx context.Context, cfg config.Config) error {
	seed, err := loadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)

	var publisher domain.EventPublisher = domain.NoopPublisher{}
	if cfg.EventsEnabled() {
		queue := outbox.NewQueue(cfg.OutboxBufferSize, logging.Component("outbox"))
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, logging.Component("kafka"))
		// Deferred calls run after group.Wait, so the final flush reaches an open producer.
		defer producer.Close()

		dispatcher := outbox.NewDispatcher(queue, producer, schemaRegistry(cfg), outbox.DispatcherConfig{
			Topic:        cfg.RosterTopic,
			PollInterval: cfg.OutboxPollInterval,
			BatchSize:    cfg.OutboxBatchSize,
			MaxAttempts:  cfg.OutboxMaxAttempts,
		}, outbox.WithLogger(logging.Component("outbox")))

		group.Go(func() error { return dispatcher.Start(ctx) })
		publisher = queue

		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.RosterTopic).Msg("roster events enabled")
	} else {
		log.Info().Msg("no kafka brokers configured, roster events disabled")
	}

	service := domain.NewService(domain.NewRegistry(seed),
		domain.WithLogger(logging.Component("registry")),
		domain.WithPublisher(publisher),
	)

	mux := http.NewServeMux()
	api.NewHandler(service).RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())
	if cfg.StaticDir != "" {
		mux.Handle("/static/", http.StripPrefix("/static/", http.FileServer(http.Dir(cfg.StaticDir))))
	}

	httpLogger := logging.Component("http")
	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	serverCfg.ShutdownTimeout = cfg.ShutdownTimeout
	server := httptransport.NewServer(serverCfg, api.RequestLogger(httpLogger, api.CORS(cfg.CORSOrigin, mux)), httpLogger)
	group.Go(func() error { return server.Run(ctx) })

	log.Info().Int("activities", len(seed)).Str("address", cfg.HTTPAddress).Msg("signup service starting")
	return group.Wait()
}

func loadSeed(path string) (map[string]domain.Activity, error) {
	if path == "" {
		return domain.DefaultSeed(), nil
	}
	return domain.LoadSeedFile(path)
}

func schemaRegistry(cfg config.Config) outbox.SchemaRegistrar {
	if cfg.SchemaRegistryURL == "" {
		return outbox.StaticSchema{}
	}
	return outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL, 10*time.Second)
}
