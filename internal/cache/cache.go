package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/neexbeast/tripsync/internal/destination"
	"github.com/neexbeast/tripsync/internal/metrics"
)

const defaultTTL = 15 * time.Minute

// Cache wraps a Redis client and provides typed get/set for search results.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a Cache. A non-positive ttl uses the 15-minute default.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// key returns the Redis key for a query and page size. The query is keyed
// exactly as normalized for the provider, so casing is preserved.
func key(query string, limit int) string {
	return "search:" + strconv.Itoa(limit) + ":" + destination.NormalizeQuery(query)
}

// Get retrieves a cached search result.
// Returns nil, nil on a cache miss (not an error).
func (c *Cache) Get(ctx context.Context, query string, limit int) (*destination.SearchResult, error) {
	val, err := c.client.Get(ctx, key(query, limit)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.ObserveCache("redis", "miss")
			return nil, nil
		}
		metrics.ObserveCache("redis", "error")
		return nil, fmt.Errorf("cache get for query %q: %w", query, err)
	}

	var res destination.SearchResult
	if err := json.Unmarshal([]byte(val), &res); err != nil {
		_ = c.client.Del(ctx, key(query, limit)).Err()
		return nil, fmt.Errorf("unmarshaling cached result for query %q: %w", query, err)
	}

	metrics.ObserveCache("redis", "hit")
	return &res, nil
}

// Set stores a search result with the configured TTL.
func (c *Cache) Set(ctx context.Context, query string, limit int, res *destination.SearchResult) error {
	if res == nil {
		return nil
	}

	b, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshaling search result for query %q: %w", query, err)
	}

	if err := c.client.Set(ctx, key(query, limit), b, c.ttl).Err(); err != nil {
		metrics.ObserveCache("redis", "error")
		return fmt.Errorf("cache set for query %q: %w", query, err)
	}

	metrics.ObserveCache("redis", "set")
	return nil
}
