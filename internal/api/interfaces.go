package api

import (
	"context"
	"time"

	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/ratelimit"
)

// DestinationSearcher defines the provider lookup needed by handlers.
type DestinationSearcher interface {
	Search(ctx context.Context, query string, limit int) (*destination.SearchResult, error)
}

// SearchCache defines the cache operations needed by handlers.
type SearchCache interface {
	Get(ctx context.Context, query string, limit int) (*destination.SearchResult, error)
	Set(ctx context.Context, query string, limit int, res *destination.SearchResult) error
}

// SearchLog defines the search log operations needed by handlers.
type SearchLog interface {
	RecordSearch(ctx context.Context, ev destination.SearchEvent) error
	PopularDestinations(ctx context.Context, since time.Time, limit int) ([]destination.PopularDestination, error)
}

// RateLimiter defines the per-client limiter guarding the search endpoint.
type RateLimiter interface {
	CheckAndConsume(ctx context.Context, clientKey string) ratelimit.Decision
}

// PopularFallback supplies the curated list when the search log has nothing.
type PopularFallback interface {
	Popular(limit int) []destination.PopularDestination
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
