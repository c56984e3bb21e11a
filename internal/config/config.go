// Package config loads runtime settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables take precedence over it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port           string
	PostgresURL    string
	RedisAddr      string
	KafkaBrokers   []string
	CompletedTopic string
	AlerterGroup   string
	AlertSinkURL   string

	StorageTimeout time.Duration
	RequestTimeout time.Duration
	CommitCooldown time.Duration
	StockCacheTTL  time.Duration
	AlertDedupTTL  time.Duration

	NotifierBuffer  int
	AuditLegacySync bool

	OTLPEndpoint   string
	ServiceVersion string
}

// Load reads the configuration. Missing values fall back to defaults;
// malformed values are reported as errors.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		PostgresURL:    getEnv("POSTGRES_URL", ""),
		RedisAddr:      getEnv("REDIS_ADDR", "localhost:6379"),
		KafkaBrokers:   splitCSV(getEnv("KAFKA_BROKERS", "")),
		CompletedTopic: getEnv("ORDER_COMPLETED_TOPIC", "order.completed"),
		AlerterGroup:   getEnv("ALERTER_GROUP", "pos-alerter"),
		AlertSinkURL:   strings.TrimRight(getEnv("ALERT_SINK_URL", "http://localhost:8090"), "/"),
		OTLPEndpoint:   getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),
	}

	var errs []error
	var err error

	if cfg.StorageTimeout, err = getEnvDuration("STORAGE_TIMEOUT", 5*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RequestTimeout, err = getEnvDuration("REQUEST_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.CommitCooldown, err = getEnvDuration("COMMIT_COOLDOWN", 750*time.Millisecond); err != nil {
		errs = append(errs, err)
	}
	if cfg.StockCacheTTL, err = getEnvDuration("STOCK_CACHE_TTL", 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.AlertDedupTTL, err = getEnvDuration("ALERT_DEDUP_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.NotifierBuffer, err = getEnvInt("NOTIFIER_BUFFER", 256); err != nil {
		errs = append(errs, err)
	}
	if cfg.AuditLegacySync, err = getEnvBool("AUDIT_LEGACY_SYNC", false); err != nil {
		errs = append(errs, err)
	}

	if cfg.NotifierBuffer <= 0 {
		errs = append(errs, errors.New("NOTIFIER_BUFFER must be > 0"))
	}
	if cfg.StorageTimeout <= 0 {
		errs = append(errs, errors.New("STORAGE_TIMEOUT must be > 0"))
	}
	if cfg.CommitCooldown < 0 {
		errs = append(errs, errors.New("COMMIT_COOLDOWN must not be negative"))
	}
	if cfg.CompletedTopic == "" {
		errs = append(errs, errors.New("ORDER_COMPLETED_TOPIC must not be empty"))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequirePostgres and RequireKafka are checked by the binaries that need them.
func (c Config) RequirePostgres() error {
	if c.PostgresURL == "" {
		return errors.New("POSTGRES_URL environment variable is required")
	}
	return nil
}

func (c Config) RequireKafka() error {
	if len(c.KafkaBrokers) == 0 {
		return errors.New("KAFKA_BROKERS environment variable is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
