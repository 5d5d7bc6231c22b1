package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 5*time.Second, cfg.Weather.Timeout)
	assert.Equal(t, 30*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, 100, cfg.Weather.CacheMaxEntries)
	assert.Equal(t, 96*time.Hour, cfg.Weather.HighResLeadTime)
	assert.Equal(t, CacheBackendMemory, cfg.Weather.CacheBackend)
	assert.Equal(t, 48*time.Hour, cfg.Sweep.Horizon)
	assert.Equal(t, 7*24*time.Hour, cfg.Sweep.InteractiveHorizon)
	assert.Equal(t, 1, cfg.Sweep.Concurrency)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("WEATHER_CACHE_BACKEND", "REDIS")
	t.Setenv("WEATHER_CACHE_TTL", "10m")
	t.Setenv("SWEEP_CONCURRENCY", "4")
	t.Setenv("ASSISTANT_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, CacheBackendRedis, cfg.Weather.CacheBackend)
	assert.Equal(t, 10*time.Minute, cfg.Weather.CacheTTL)
	assert.Equal(t, 4, cfg.Sweep.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Assistant.Timeout)
}

func TestLoadUnknownCacheBackendFallsBackToMemory(t *testing.T) {
	t.Setenv("WEATHER_CACHE_BACKEND", "memcached")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, CacheBackendMemory, cfg.Weather.CacheBackend)
}
