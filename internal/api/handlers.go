package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/ratelimit"
)

const (
	defaultLimit   = 10
	maxLimit       = 20
	minQueryLength = 2
	maxBodyBytes   = 16 << 10

	popularWindow = 30 * 24 * time.Hour
)

// Handlers holds the dependencies for all HTTP handlers.
// cache and searchLog may be nil when Redis or Postgres are not configured.
type Handlers struct {
	searcher  DestinationSearcher
	cache     SearchCache
	searchLog SearchLog
	limiter   RateLimiter
	popular   PopularFallback
	log       *slog.Logger
	clientKey func(*http.Request) string
}

// HandlerOption configures optional Handlers behaviour.
type HandlerOption func(*Handlers)

// WithClientKey sets how callers are identified for rate limiting. The
// default is ratelimit.ClientKey, which trusts forwarding headers.
func WithClientKey(fn func(*http.Request) string) HandlerOption {
	return func(h *Handlers) { h.clientKey = fn }
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(searcher DestinationSearcher, cache SearchCache, searchLog SearchLog, limiter RateLimiter, popular PopularFallback, log *slog.Logger, opts ...HandlerOption) *Handlers {
	h := &Handlers{
		searcher:  searcher,
		cache:     cache,
		searchLog: searchLog,
		limiter:   limiter,
		popular:   popular,
		log:       log,
		clientKey: ratelimit.ClientKey,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeInternalError(w http.ResponseWriter) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{
		"error":   "Internal server error",
		"message": "Failed to search destinations",
	})
}

type searchRequest struct {
	Query json.RawMessage `json:"query"`
	Limit json.RawMessage `json:"limit"`
}

type searchMeta struct {
	Query     string `json:"query"`
	Remaining int    `json:"remaining"`
	Client    string `json:"client"`
	Cached    bool   `json:"cached"`
	Timestamp string `json:"timestamp"`
}

type searchResponse struct {
	Destinations []destination.Destination `json:"destinations"`
	HasMore      bool                      `json:"hasMore"`
	Source       destination.Source        `json:"source"`
	Meta         searchMeta                `json:"meta"`
}

// badRequest is a validation failure whose text is returned to the caller.
type badRequest string

func (e badRequest) Error() string { return string(e) }

const (
	errInvalidBody  badRequest = "Invalid JSON body"
	errQueryType    badRequest = "Query is required and must be a string"
	errQueryShort   badRequest = "Query must be at least 2 characters long"
	errInvalidLimit badRequest = "Limit must be an integer between 1 and 20"
)

// parseSearchRequest validates the body and returns the normalized query and limit.
func parseSearchRequest(body io.Reader) (string, int, error) {
	var req searchRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		return "", 0, errInvalidBody
	}

	var query string
	if len(req.Query) == 0 || bytes.Equal(req.Query, []byte("null")) {
		return "", 0, errQueryType
	}
	if err := json.Unmarshal(req.Query, &query); err != nil {
		return "", 0, errQueryType
	}

	query = destination.NormalizeQuery(query)
	if destination.QueryLength(query) < minQueryLength {
		return "", 0, errQueryShort
	}

	limit := defaultLimit
	if len(req.Limit) > 0 && !bytes.Equal(req.Limit, []byte("null")) {
		var f float64
		if err := json.Unmarshal(req.Limit, &f); err != nil {
			return "", 0, errInvalidLimit
		}
		if f < 1 || f > maxLimit || f != math.Trunc(f) {
			return "", 0, errInvalidLimit
		}
		limit = int(f)
	}

	return query, limit, nil
}

func setRateLimitHeaders(w http.ResponseWriter, d ratelimit.Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// SearchDestinations handles POST /api/destinations/search.
// Rate limit → validate → cache → providers → cache + search log.
func (h *Handlers) SearchDestinations(w http.ResponseWriter, r *http.Request) {
	clientKey := h.clientKey(r)
	decision := h.limiter.CheckAndConsume(r.Context(), clientKey)
	setRateLimitHeaders(w, decision)
	if !decision.Allowed {
		retry := max(int(decision.RetryAfter(time.Now()).Seconds()), 1)
		w.Header().Set("Retry-After", strconv.Itoa(retry))
		h.log.Info("search rate limited", "client", ratelimit.Partial(clientKey))
		writeError(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
		return
	}

	query, limit, err := parseSearchRequest(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	meta := searchMeta{
		Query:     query,
		Remaining: decision.Remaining,
		Client:    ratelimit.Partial(clientKey),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	if h.cache != nil {
		cached, err := h.cache.Get(r.Context(), query, limit)
		if err != nil {
			h.log.Warn("cache get failed", "query", query, "err", err)
		}
		if cached != nil {
			meta.Cached = true
			writeSearchResponse(w, cached, meta)
			return
		}
	}

	res, err := h.searcher.Search(r.Context(), query, limit)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			h.log.Debug("search cancelled by client", "query", query)
			return
		}
		h.log.Error("search failed", "query", query, "err", err)
		writeInternalError(w)
		return
	}

	if h.cache != nil && res.Source == destination.SourcePrimary {
		if err := h.cache.Set(r.Context(), query, limit, res); err != nil {
			h.log.Warn("cache set failed after search", "query", query, "err", err)
		}
	}

	h.recordSearch(r.Context(), query, res, meta.Client)
	writeSearchResponse(w, res, meta)
}

func (h *Handlers) recordSearch(ctx context.Context, query string, res *destination.SearchResult, client string) {
	if h.searchLog == nil {
		return
	}
	ev := destination.SearchEvent{
		Query:           query,
		Source:          res.Source,
		ResultCount:     len(res.Destinations),
		ClientKeyPrefix: client,
	}
	if len(res.Destinations) > 0 {
		top := res.Destinations[0]
		ev.TopResult = &top
	}
	if err := h.searchLog.RecordSearch(ctx, ev); err != nil {
		h.log.Warn("recording search failed", "query", query, "err", err)
	}
}

func writeSearchResponse(w http.ResponseWriter, res *destination.SearchResult, meta searchMeta) {
	dests := res.Destinations
	if dests == nil {
		dests = []destination.Destination{}
	}
	writeJSON(w, http.StatusOK, searchResponse{
		Destinations: dests,
		HasMore:      res.HasMore,
		Source:       res.Source,
		Meta:         meta,
	})
}

// SearchMethodNotAllowed handles every non-POST method on the search route.
func (h *Handlers) SearchMethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Allow", http.MethodPost)
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed. Use POST.")
}

type popularResponse struct {
	Destinations []destination.PopularDestination `json:"destinations"`
	Source       string                           `json:"source"`
}

// PopularDestinations handles GET /api/destinations/popular.
// Search log hit → return. Otherwise the curated fallback list.
func (h *Handlers) PopularDestinations(w http.ResponseWriter, r *http.Request) {
	limit := defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxLimit {
			writeError(w, http.StatusBadRequest, errInvalidLimit.Error())
			return
		}
		limit = n
	}

	if h.searchLog != nil {
		popular, err := h.searchLog.PopularDestinations(r.Context(), time.Now().Add(-popularWindow), limit)
		if err != nil {
			h.log.Warn("popular destinations query failed", "err", err)
		}
		if len(popular) > 0 {
			writeJSON(w, http.StatusOK, popularResponse{Destinations: popular, Source: "searches"})
			return
		}
	}

	writeJSON(w, http.StatusOK, popularResponse{Destinations: h.popular.Popular(limit), Source: string(destination.SourceFallback)})
}

// HealthHandlerFunc returns an http.HandlerFunc that checks the configured
// dependencies. A nil Pinger is reported as "disabled".
func HealthHandlerFunc(db, redis Pinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		check := func(name string, p Pinger) string {
			if p == nil {
				return "disabled"
			}
			if err := p.Ping(ctx); err != nil {
				log.Error("health check: ping failed", "dependency", name, "err", err)
				status = http.StatusServiceUnavailable
				return "error"
			}
			return "ok"
		}

		dbStatus := check("db", db)
		redisStatus := check("redis", redis)

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}
