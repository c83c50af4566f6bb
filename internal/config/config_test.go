package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "STORE", "KAFKA_BROKERS", "CACHE_TTL", "CACHE_CAPACITY", "EVENT_WORKERS"} {
		t.Setenv(k, "")
	}

	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "mysql", cfg.Store)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1000, cfg.CacheCapacity)
	assert.Equal(t, 4, cfg.EventWorkers)
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("STORE", "Memory")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("CACHE_TTL", "90s")
	t.Setenv("CACHE_CAPACITY", "250")
	t.Setenv("APP_ENV", "development")

	cfg := Load()
	assert.Equal(t, "memory", cfg.Store)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 90*time.Second, cfg.CacheTTL)
	assert.Equal(t, 250, cfg.CacheCapacity)
	assert.True(t, cfg.Development())
}

func TestLoad_MalformedFallsBack(t *testing.T) {
	t.Setenv("CACHE_TTL", "soon")
	t.Setenv("CACHE_CAPACITY", "-4")

	cfg := Load()
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 1000, cfg.CacheCapacity)
}
