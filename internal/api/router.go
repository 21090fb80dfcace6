package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/neexbeast/tripsync/internal/metrics"
)

const searchPath = "/api/destinations/search"

// RouterOptions carries the optional pieces of the router.
type RouterOptions struct {
	// DB and Redis are pinged by the health endpoint; nil means not configured.
	DB    Pinger
	Redis Pinger
	// Registry is served on /metrics when set.
	Registry *prometheus.Registry
	// MetricsToken protects /metrics with bearer auth when non-empty.
	MetricsToken string
	// GlobalRatePerMinute caps every route per IP; 0 disables it.
	GlobalRatePerMinute int
	// IgnoreProxyHeaders keys the global guard on RemoteAddr instead of
	// X-Forwarded-For / X-Real-IP.
	IgnoreProxyHeaders bool
}

// NewRouter builds and returns the Chi router with all routes configured.
// The per-client search quota is enforced by the search handler; the optional
// httprate guard only absorbs bursts across all routes.
func NewRouter(handlers *Handlers, opts RouterOptions, log *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(Instrument(log))
	r.Use(RecoverJSON(log))
	if opts.GlobalRatePerMinute > 0 {
		keyFn := httprate.KeyByRealIP
		if opts.IgnoreProxyHeaders {
			keyFn = httprate.KeyByIP
		}
		r.Use(httprate.Limit(opts.GlobalRatePerMinute, time.Minute,
			httprate.WithKeyFuncs(keyFn),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			}),
		))
	}

	r.Get("/api/health", HealthHandlerFunc(opts.DB, opts.Redis, log))

	// The catch-all must be registered before Post so POST keeps its own handler.
	r.HandleFunc(searchPath, handlers.SearchMethodNotAllowed)
	r.Post(searchPath, handlers.SearchDestinations)
	r.Get("/api/destinations/popular", handlers.PopularDestinations)

	if opts.Registry != nil {
		r.Group(func(r chi.Router) {
			if opts.MetricsToken != "" {
				r.Use(BearerAuth(opts.MetricsToken))
			}
			r.Method(http.MethodGet, "/metrics", metrics.Handler(opts.Registry))
		})
	}

	return r
}

// Ensure chi.Mux implements http.Handler.
var _ http.Handler = (*chi.Mux)(nil)
