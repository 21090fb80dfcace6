package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/neexbeast/tripsync/internal/destination"
)

// Querier abstracts the subset of pgxpool.Pool used by Repository.
// This allows injection of a mock in tests.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Repository provides database access for the search log.
type Repository struct {
	q Querier
}

// NewRepository constructs a Repository backed by the given pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{q: pool}
}

// NewRepositoryWithQuerier constructs a Repository with a custom Querier (for tests).
func NewRepositoryWithQuerier(q Querier) *Repository {
	return &Repository{q: q}
}

// RecordSearch appends one event to the search log.
func (r *Repository) RecordSearch(ctx context.Context, ev destination.SearchEvent) error {
	var topJSON []byte
	if ev.TopResult != nil {
		b, err := json.Marshal(ev.TopResult)
		if err != nil {
			return fmt.Errorf("marshaling top result for query %q: %w", ev.Query, err)
		}
		topJSON = b
	}

	const q = `
		INSERT INTO search_events (query, source, result_count, top_result, client_key_prefix)
		VALUES ($1, $2, $3, $4, $5)
	`

	if _, err := r.q.Exec(ctx, q, ev.Query, string(ev.Source), ev.ResultCount, topJSON, ev.ClientKeyPrefix); err != nil {
		return fmt.Errorf("recording search for query %q: %w", ev.Query, err)
	}

	return nil
}

// PopularDestinations returns the destinations that most often ranked first in
// searches made since the given time, most frequent first. The latest stored
// copy of each destination is returned.
func (r *Repository) PopularDestinations(ctx context.Context, since time.Time, limit int) ([]destination.PopularDestination, error) {
	const q = `
		SELECT (ARRAY_AGG(top_result ORDER BY created_at DESC))[1] AS top_result,
		       COUNT(*) AS searches
		FROM search_events
		WHERE top_result IS NOT NULL
		AND created_at >= $1
		GROUP BY top_result->>'id'
		ORDER BY searches DESC
		LIMIT $2
	`

	rows, err := r.q.Query(ctx, q, since, limit)
	if err != nil {
		return nil, fmt.Errorf("querying popular destinations: %w", err)
	}
	defer rows.Close()

	results := make([]destination.PopularDestination, 0, limit)
	for rows.Next() {
		var topJSON []byte
		var count int

		if err := rows.Scan(&topJSON, &count); err != nil {
			return nil, fmt.Errorf("scanning popular destination row: %w", err)
		}

		var p destination.PopularDestination
		if err := json.Unmarshal(topJSON, &p.Destination); err != nil {
			return nil, fmt.Errorf("unmarshaling popular destination: %w", err)
		}
		if p.Photos == nil {
			p.Photos = []string{}
		}
		p.SearchCount = count
		results = append(results, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating popular destination rows: %w", err)
	}

	return results, nil
}
