package config_test

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripsync/internal/config"
	"github.com/neexbeast/tripsync/internal/ratelimit"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"PORT", "LOG_LEVEL", "GOOGLE_PLACES_API_KEY", "GOOGLE_PLACES_URL", "REDIS_URL", "DATABASE_URL",
		"MIGRATIONS_DIR", "CACHE_TTL", "RATE_LIMIT_REQUESTS", "RATE_LIMIT_WINDOW_MS", "RATE_LIMIT_STORE",
		"RATE_LIMIT_SWEEP_INTERVAL", "GLOBAL_RATE_LIMIT_PER_MINUTE", "METRICS_TOKEN",
		"TRUST_PROXY_HEADERS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
	assert.Equal(t, ratelimit.DefaultConfig(), cfg.RateLimit.Limiter)
	assert.Equal(t, config.StoreMemory, cfg.RateLimit.Store)
	assert.Zero(t, cfg.RateLimit.SweepInterval, "eviction must be opt-in")
	assert.Equal(t, 15*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 120, cfg.GlobalRatePerMinute)
	assert.Equal(t, "migrations", cfg.MigrationsDir)
	assert.True(t, cfg.TrustProxyHeaders)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("RATE_LIMIT_REQUESTS", "5")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "60000")
	t.Setenv("RATE_LIMIT_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("RATE_LIMIT_SWEEP_INTERVAL", "10m")
	t.Setenv("GLOBAL_RATE_LIMIT_PER_MINUTE", "0")
	t.Setenv("TRUST_PROXY_HEADERS", "false")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, ratelimit.Config{RequestsPerWindow: 5, Window: time.Minute}, cfg.RateLimit.Limiter)
	assert.Equal(t, config.StoreRedis, cfg.RateLimit.Store)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.SweepInterval)
	assert.Equal(t, 0, cfg.GlobalRatePerMinute)
	assert.False(t, cfg.TrustProxyHeaders)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string][2]string{
		"non-numeric requests": {"RATE_LIMIT_REQUESTS", "lots"},
		"zero requests":        {"RATE_LIMIT_REQUESTS", "0"},
		"negative window":      {"RATE_LIMIT_WINDOW_MS", "-1"},
		"bad sweep":            {"RATE_LIMIT_SWEEP_INTERVAL", "often"},
		"bad level":            {"LOG_LEVEL", "loud"},
		"unknown store":        {"RATE_LIMIT_STORE", "etcd"},
		"redis without url":    {"RATE_LIMIT_STORE", "redis"},
		"bad trust flag":       {"TRUST_PROXY_HEADERS", "sometimes"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(kv[0], kv[1])
			_, err := config.Load()
			require.Error(t, err)
		})
	}
}
