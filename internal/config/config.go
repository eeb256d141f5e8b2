// Package config centralises configuration parsing for the signup service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Config captures runtime configuration values for the signup binaries.
type Config struct {
	HTTPAddress        string
	StaticDir          string
	SeedFile           string
	CORSOrigin         string
	LogLevel           string
	LogFormat          string
	KafkaBrokers       []string
	RosterTopic        string
	SchemaRegistryURL  string
	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxBufferSize   int
	OutboxMaxAttempts  int
	ConsumerGroupID    string
	ConsumerTopics     []string
	PostgresURL        string
	MetricsAddress     string
	ShutdownTimeout    time.Duration
}

// Load reads environment variables into Config, applying sensible defaults for local dev.
// An empty KAFKA_BROKERS disables event delivery.
func Load() Config {
	return Config{
		HTTPAddress:        getEnv("HTTP_ADDRESS", ":8080"),
		StaticDir:          getEnv("STATIC_DIR", ""),
		SeedFile:           getEnv("SEED_FILE", ""),
		CORSOrigin:         getEnv("CORS_ORIGIN", "http://localhost:5173"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		KafkaBrokers:       splitAndTrim(os.Getenv("KAFKA_BROKERS")),
		RosterTopic:        getEnv("ROSTER_TOPIC", "roster_events"),
		SchemaRegistryURL:  getEnv("SCHEMA_REGISTRY_URL", ""),
		OutboxPollInterval: getDurationEnv("OUTBOX_POLL_INTERVAL", time.Second),
		OutboxBatchSize:    getIntEnv("OUTBOX_BATCH_SIZE", 50),
		OutboxBufferSize:   getIntEnv("OUTBOX_BUFFER_SIZE", 1024),
		OutboxMaxAttempts:  getIntEnv("OUTBOX_MAX_ATTEMPTS", 5),
		ConsumerGroupID:    getEnv("CONSUMER_GROUP_ID", "roster-audit"),
		ConsumerTopics:     splitAndTrim(getEnv("CONSUMER_TOPICS", "roster_events")),
		PostgresURL:        getEnv("POSTGRES_URL", ""),
		MetricsAddress:     getEnv("METRICS_ADDRESS", ":9195"),
		ShutdownTimeout:    getDurationEnv("SHUTDOWN_TIMEOUT", 15*time.Second),
	}
}

// BindFlags registers command-line overrides on fs using the values in cfg as defaults.
// Flags are applied to cfg when fs is parsed.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.HTTPAddress, "http-address", cfg.HTTPAddress, "address the HTTP API listens on")
	fs.StringVar(&cfg.StaticDir, "static-dir", cfg.StaticDir, "directory served under /static/")
	fs.StringVar(&cfg.SeedFile, "seed-file", cfg.SeedFile, "YAML activity catalog replacing the built-in seed")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format (json or console)")
	fs.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "Kafka brokers for roster events; empty disables delivery")
	fs.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "Postgres URL for the roster audit table")
}

// EventsEnabled reports whether roster events should be delivered to Kafka.
func (c Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func splitAndTrim(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}
