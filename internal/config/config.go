package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/neexbeast/tripsync/internal/ratelimit"
)

// Config holds application configuration.
type Config struct {
	Port          string
	LogLevel      slog.Level
	PlacesAPIKey  string
	PlacesURL     string
	RedisURL      string
	DatabaseURL   string
	MigrationsDir string
	CacheTTL      time.Duration
	RateLimit     RateLimitConfig
	// GlobalRatePerMinute bounds all routes per IP; 0 disables the guard.
	GlobalRatePerMinute int
	// MetricsToken, when set, requires bearer auth on /metrics.
	MetricsToken string
	// TrustProxyHeaders identifies clients by X-Forwarded-For / X-Real-IP.
	// Disable it when the service is reachable without a rewriting proxy.
	TrustProxyHeaders bool
}

// StoreType selects where rate limit records live.
type StoreType string

const (
	StoreMemory StoreType = "memory"
	StoreRedis  StoreType = "redis"
)

// RateLimitConfig holds the search rate limiter settings.
type RateLimitConfig struct {
	Limiter ratelimit.Config
	Store   StoreType
	// SweepInterval enables periodic removal of expired in-memory records.
	// Zero keeps every record for the life of the process.
	SweepInterval time.Duration
}

// Load reads configuration from the environment, after loading a .env file if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}

	windowMs, err := getEnvAsInt("RATE_LIMIT_WINDOW_MS", int(ratelimit.DefaultWindow/time.Millisecond))
	if err != nil {
		return nil, err
	}
	requests, err := getEnvAsInt("RATE_LIMIT_REQUESTS", ratelimit.DefaultRequestsPerWindow)
	if err != nil {
		return nil, err
	}
	if requests <= 0 || windowMs <= 0 {
		return nil, fmt.Errorf("rate limit requests and window must be positive, got %d and %dms", requests, windowMs)
	}

	sweep, err := getEnvAsDuration("RATE_LIMIT_SWEEP_INTERVAL", 0)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvAsDuration("CACHE_TTL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	global, err := getEnvAsInt("GLOBAL_RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return nil, err
	}

	trustProxy, err := getEnvAsBool("TRUST_PROXY_HEADERS", true)
	if err != nil {
		return nil, err
	}

	redisURL := getEnv("REDIS_URL", "")
	store := StoreType(strings.ToLower(getEnv("RATE_LIMIT_STORE", string(StoreMemory))))
	switch store {
	case StoreMemory:
	case StoreRedis:
		if redisURL == "" {
			return nil, fmt.Errorf("RATE_LIMIT_STORE=redis requires REDIS_URL")
		}
	default:
		return nil, fmt.Errorf("unknown RATE_LIMIT_STORE %q", store)
	}

	return &Config{
		Port:          getEnv("PORT", "8080"),
		LogLevel:      level,
		PlacesAPIKey:  getEnv("GOOGLE_PLACES_API_KEY", ""),
		PlacesURL:     getEnv("GOOGLE_PLACES_URL", ""),
		RedisURL:      redisURL,
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "migrations"),
		CacheTTL:      cacheTTL,
		RateLimit: RateLimitConfig{
			Limiter: ratelimit.Config{
				RequestsPerWindow: requests,
				Window:            time.Duration(windowMs) * time.Millisecond,
			},
			Store:         store,
			SweepInterval: sweep,
		},
		GlobalRatePerMinute: global,
		MetricsToken:        getEnv("METRICS_TOKEN", ""),
		TrustProxyHeaders:   trustProxy,
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("parsing LOG_LEVEL: %w", err)
	}
	return level, nil
}
