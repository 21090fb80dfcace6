// Package metrics exposes Prometheus instrumentation for the search service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tripsync"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "HTTP requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "http_request_duration_seconds",
			Help:    "HTTP request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
	ProviderRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "provider_requests_total", Help: "Search provider calls."},
		[]string{"provider", "outcome"}, // outcome: ok|error|disabled|cancelled
	)
	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace, Name: "provider_request_duration_seconds",
			Help:    "Search provider call duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
	RateLimitDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_decisions_total", Help: "Rate limiter decisions."},
		[]string{"decision"}, // decision: allowed|denied|store_error
	)
	CacheEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_events_total", Help: "Cache hits/misses/sets."},
		[]string{"cache", "event"},
	)
)

// InitRegistry returns a registry with every collector of this package registered.
func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(HTTPRequests, HTTPLatency, ProviderRequests, ProviderLatency, RateLimitDecisions, CacheEvents)
	return reg
}

// Handler serves the given registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route, method).Observe(dur.Seconds())
}

func ObserveProvider(provider, outcome string, dur time.Duration) {
	ProviderRequests.WithLabelValues(provider, outcome).Inc()
	ProviderLatency.WithLabelValues(provider).Observe(dur.Seconds())
}

func ObserveRateLimit(decision string) {
	RateLimitDecisions.WithLabelValues(decision).Inc()
}

func ObserveCache(cache, event string) { // event: hit|miss|set|error
	CacheEvents.WithLabelValues(cache, event).Inc()
}
