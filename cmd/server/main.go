package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/tripsync/internal/api"
	"github.com/neexbeast/tripsync/internal/cache"
	"github.com/neexbeast/tripsync/internal/config"
	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/metrics"
	"github.com/neexbeast/tripsync/internal/ratelimit"
	"github.com/neexbeast/tripsync/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("loading config", "err", err)
		os.Exit(1)
	}

	log := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))

	if err := run(cfg, log); err != nil {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := api.RouterOptions{
		Registry:            metrics.InitRegistry(),
		MetricsToken:        cfg.MetricsToken,
		GlobalRatePerMinute: cfg.GlobalRatePerMinute,
		IgnoreProxyHeaders:  !cfg.TrustProxyHeaders,
	}

	// PostgreSQL is optional: without it searches are not logged.
	var searchLog api.SearchLog
	if cfg.DatabaseURL != "" {
		pool, err := storage.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer pool.Close()

		if err := storage.RunMigrations(ctx, pool, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		log.Info("migrations applied", "dir", cfg.MigrationsDir)

		searchLog = storage.NewRepository(pool)
		opts.DB = &pgxPoolPinger{pool: pool}
	} else {
		log.Warn("DATABASE_URL not set, search log disabled")
	}

	// Redis is optional: without it there is no result cache and the
	// rate limiter keeps its records in memory.
	var redisClient *redis.Client
	var searchCache api.SearchCache
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() { _ = client.Close() }()

		redisClient = client
		searchCache = cache.NewCache(client, cfg.CacheTTL)
		opts.Redis = &redisPingerAdapter{client: client}
	} else {
		log.Warn("REDIS_URL not set, search cache disabled")
	}

	var store ratelimit.Store
	switch cfg.RateLimit.Store {
	case config.StoreRedis:
		store = ratelimit.NewRedisStore(redisClient)
	default:
		mem := ratelimit.NewMemoryStore()
		mem.StartSweeper(ctx, cfg.RateLimit.SweepInterval, nil)
		store = mem
	}
	limiter := ratelimit.NewLimiter(cfg.RateLimit.Limiter, store, ratelimit.WithLogger(log))
	log.Info("rate limiter configured",
		"store", cfg.RateLimit.Store,
		"requests", cfg.RateLimit.Limiter.RequestsPerWindow,
		"window", cfg.RateLimit.Limiter.Window,
		"sweep_interval", cfg.RateLimit.SweepInterval,
	)

	places := destination.NewPlacesClient(cfg.PlacesAPIKey)
	if cfg.PlacesURL != "" {
		places = destination.NewPlacesClientWithURL(cfg.PlacesURL, cfg.PlacesAPIKey)
	}
	if !places.Enabled() {
		log.Warn("GOOGLE_PLACES_API_KEY not set, serving fallback catalogue only")
	}
	fallback := destination.NewFallback()
	searcher := destination.NewSearcherWithProviders(places, fallback, log)

	var handlerOpts []api.HandlerOption
	if !cfg.TrustProxyHeaders {
		handlerOpts = append(handlerOpts, api.WithClientKey(ratelimit.RemoteAddrKey))
	}
	handlers := api.NewHandlers(searcher, searchCache, searchLog, limiter, fallback, log, handlerOpts...)
	router := api.NewRouter(handlers, opts, log)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("server goroutine panicked", "recover", r)
				errCh <- fmt.Errorf("server panicked: %v", r)
			}
		}()
		log.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listening: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("server shut down cleanly")
	return nil
}

// pgxPoolPinger adapts pgxpool.Pool to the health check pinger.
type pgxPoolPinger struct {
	pool *pgxpool.Pool
}

func (p *pgxPoolPinger) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// redisPingerAdapter adapts redis.Client to the health check pinger.
type redisPingerAdapter struct {
	client *redis.Client
}

func (r *redisPingerAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
