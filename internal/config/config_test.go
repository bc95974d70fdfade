package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "temp", cfg.TempDir)
	assert.Equal(t, "output", cfg.OutputDir)
	assert.Empty(t, cfg.CatalogPath)
	assert.Equal(t, 1.0, cfg.MaxDistance)
	assert.Equal(t, 1000, cfg.CacheSize)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "climate-index-records", cfg.KafkaTopic)
	assert.False(t, cfg.PublishEnabled())
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("CLIMDEX_TEMP_DIR", "/var/tmp/climdex")
	t.Setenv("CLIMDEX_OUTPUT_DIR", "/data/out")
	t.Setenv("CLIMDEX_CATALOG", "catalog.yaml")
	t.Setenv("CLIMDEX_MAX_DISTANCE", "0.5")
	t.Setenv("CLIMDEX_CACHE_SIZE", "250")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-records")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/tmp/climdex", cfg.TempDir)
	assert.Equal(t, "/data/out", cfg.OutputDir)
	assert.Equal(t, "catalog.yaml", cfg.CatalogPath)
	assert.Equal(t, 0.5, cfg.MaxDistance)
	assert.Equal(t, 250, cfg.CacheSize)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "custom-records", cfg.KafkaTopic)
	assert.True(t, cfg.PublishEnabled())
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_NegativeShutdownTimeout(t *testing.T) {
	t.Setenv("SHUTDOWN_TIMEOUT", "-1s")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidMaxDistance(t *testing.T) {
	t.Setenv("CLIMDEX_MAX_DISTANCE", "not-a-number")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLIMDEX_MAX_DISTANCE")
}

func TestLoad_ZeroMaxDistance(t *testing.T) {
	t.Setenv("CLIMDEX_MAX_DISTANCE", "0")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLIMDEX_MAX_DISTANCE")
}

func TestLoad_InvalidCacheSizeFallsBack(t *testing.T) {
	t.Setenv("CLIMDEX_CACHE_SIZE", "-5")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.CacheSize)
}

func TestLoad_BrokerListIgnoresEmptyEntries(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092,, ,broker2:9092,")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
}
