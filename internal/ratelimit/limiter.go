// Package ratelimit implements a per-client fixed-window request limiter.
//
// A window opens on the first request for a key and lasts Config.Window.
// Up to Config.RequestsPerWindow requests are accepted inside it; the rest are
// rejected until the window ends. Because windows are fixed, a client can get
// up to twice the ceiling through across a window boundary.
package ratelimit

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/neexbeast/tripsync/internal/metrics"
)

// UnknownClient is the shared bucket for callers without an identity.
const UnknownClient = "unknown"

const (
	DefaultRequestsPerWindow = 50
	DefaultWindow            = time.Hour
)

// Config holds the recognised limiter options.
type Config struct {
	RequestsPerWindow int
	Window            time.Duration
}

// DefaultConfig returns 50 requests per hour.
func DefaultConfig() Config {
	return Config{RequestsPerWindow: DefaultRequestsPerWindow, Window: DefaultWindow}
}

// Decision is the outcome of one CheckAndConsume call.
type Decision struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetAt   time.Time
}

// RetryAfter returns how long the caller should wait before the window resets.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.Before(now) {
		return 0
	}
	return d.ResetAt.Sub(now)
}

// Limiter applies Config to the records held in a Store.
type Limiter struct {
	cfg   Config
	store Store
	now   func() time.Time
	log   *slog.Logger

	// mu serialises read-check-upsert for stores that cannot consume atomically.
	mu sync.Mutex
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) { l.now = now }
}

// WithLogger sets the logger used for store failures.
func WithLogger(log *slog.Logger) Option {
	return func(l *Limiter) { l.log = log }
}

// NewLimiter constructs a Limiter. Non-positive config values fall back to the defaults.
func NewLimiter(cfg Config, store Store, opts ...Option) *Limiter {
	if cfg.RequestsPerWindow <= 0 {
		cfg.RequestsPerWindow = DefaultRequestsPerWindow
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l := &Limiter{cfg: cfg, store: store, now: time.Now, log: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Config returns the effective configuration.
func (l *Limiter) Config() Config {
	return l.cfg
}

// CheckAndConsume counts one request for clientKey and reports whether it is allowed.
// It never fails: a blank key uses the shared UnknownClient bucket and store errors
// are logged and treated as allowed.
func (l *Limiter) CheckAndConsume(ctx context.Context, clientKey string) Decision {
	key := strings.TrimSpace(clientKey)
	if key == "" {
		key = UnknownClient
	}
	now := l.now()

	var (
		rec     Record
		allowed bool
		err     error
	)
	if c, ok := l.store.(Consumer); ok {
		rec, allowed, err = c.Consume(ctx, key, l.cfg.RequestsPerWindow, l.cfg.Window, now)
	} else {
		rec, allowed, err = l.consumeLocked(ctx, key, now)
	}

	if err != nil {
		l.log.Warn("rate limit store failed, allowing request", "client", Partial(key), "err", err)
		metrics.ObserveRateLimit("store_error")
		return Decision{
			Allowed:   true,
			Remaining: l.cfg.RequestsPerWindow - 1,
			Limit:     l.cfg.RequestsPerWindow,
			ResetAt:   now.Add(l.cfg.Window),
		}
	}

	d := Decision{Allowed: allowed, Limit: l.cfg.RequestsPerWindow, ResetAt: rec.WindowResetAt}
	if allowed {
		d.Remaining = max(l.cfg.RequestsPerWindow-rec.Count, 0)
		metrics.ObserveRateLimit("allowed")
	} else {
		metrics.ObserveRateLimit("denied")
	}
	return d
}

func (l *Limiter) consumeLocked(ctx context.Context, key string, now time.Time) (Record, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return Record{}, false, err
	}

	if !ok || rec.Expired(now) {
		rec = Record{Count: 1, WindowResetAt: now.Add(l.cfg.Window)}
		return rec, true, l.store.Upsert(ctx, key, rec)
	}

	if rec.Count >= l.cfg.RequestsPerWindow {
		return rec, false, nil
	}

	rec.Count++
	return rec, true, l.store.Upsert(ctx, key, rec)
}

// ClientKey identifies the caller of r: the first X-Forwarded-For entry, then
// X-Real-IP, then RemoteAddrKey. The headers are client-controlled, so use it
// only behind a proxy that overwrites them.
func ClientKey(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
		return xrip
	}
	return RemoteAddrKey(r)
}

// RemoteAddrKey identifies the caller of r by the host part of RemoteAddr
// alone, ignoring forwarding headers. It falls back to UnknownClient.
func RemoteAddrKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return UnknownClient
}

// Partial returns the first 8 characters of key followed by "...", for logs and
// response metadata.
func Partial(key string) string {
	if utf8.RuneCountInString(key) <= 8 {
		return key + "..."
	}
	return string([]rune(key)[:8]) + "..."
}
