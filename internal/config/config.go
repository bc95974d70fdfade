package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	TempDir     string
	OutputDir   string
	CatalogPath string
	MaxDistance float64
	CacheSize   int

	LogLevel  string
	LogFormat string

	// Operational HTTP endpoints for long batch runs. Empty disables the server.
	HTTPAddr        string
	ShutdownTimeout time.Duration

	// Kafka publishing of finished index records. No brokers disables it.
	KafkaBrokers []string
	KafkaTopic   string
}

// PublishEnabled reports whether finished records should be published to Kafka.
func (c *Config) PublishEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := parseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	maxDistance, err := parseMaxDistance()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		TempDir:     envOrDefault("CLIMDEX_TEMP_DIR", "temp"),
		OutputDir:   envOrDefault("CLIMDEX_OUTPUT_DIR", "output"),
		CatalogPath: os.Getenv("CLIMDEX_CATALOG"),
		MaxDistance: maxDistance,
		CacheSize:   parseCacheSize(),

		LogLevel:  envOrDefault("LOG_LEVEL", "info"),
		LogFormat: envOrDefault("LOG_FORMAT", "json"),

		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		KafkaBrokers: parseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   envOrDefault("KAFKA_TOPIC", "climate-index-records"),
	}

	if cfg.PublishEnabled() && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_BROKERS is set but KAFKA_TOPIC is empty")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseShutdownTimeout() (time.Duration, error) {
	d, err := time.ParseDuration(envOrDefault("SHUTDOWN_TIMEOUT", "10s"))
	if err != nil || d <= 0 {
		return 0, errors.New("invalid SHUTDOWN_TIMEOUT")
	}
	return d, nil
}

func parseMaxDistance() (float64, error) {
	v, err := strconv.ParseFloat(envOrDefault("CLIMDEX_MAX_DISTANCE", "1"), 64)
	if err != nil || v <= 0 {
		return 0, errors.New("invalid CLIMDEX_MAX_DISTANCE")
	}
	return v, nil
}

func parseCacheSize() int {
	if s := os.Getenv("CLIMDEX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

func parseBrokers(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	brokers := make([]string, 0, len(parts))
	for _, p := range parts {
		if b := strings.TrimSpace(p); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
