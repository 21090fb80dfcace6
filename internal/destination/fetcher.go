package destination

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/neexbeast/tripsync/internal/metrics"
)

// provider is the interface satisfied by PlacesClient and Fallback.
type provider interface {
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
}

// Searcher queries the primary provider and the fallback catalogue in parallel
// and prefers the primary result.
type Searcher struct {
	primary  provider
	fallback provider
	log      *slog.Logger
}

// NewSearcher constructs a Searcher backed by Google Places and the built-in catalogue.
func NewSearcher(placesKey string, log *slog.Logger) *Searcher {
	return &Searcher{primary: NewPlacesClient(placesKey), fallback: NewFallback(), log: log}
}

// NewSearcherWithProviders constructs a Searcher with explicit providers.
func NewSearcherWithProviders(primary, fallback provider, log *slog.Logger) *Searcher {
	return &Searcher{primary: primary, fallback: fallback, log: log}
}

// Search returns results for query. A primary failure is non-fatal: the fallback
// result is returned with Source set to SourceFallback. An error is returned only
// when both providers fail or ctx is done.
func (s *Searcher) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	g, gCtx := errgroup.WithContext(ctx)

	var primaryRes, fallbackRes *SearchResult
	var primaryErr error

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("primary search panicked", "recover", r)
				primaryErr = fmt.Errorf("primary search panicked: %v", r)
			}
		}()
		start := time.Now()
		res, searchErr := s.primary.Search(gCtx, query, limit)
		metrics.ObserveProvider(string(SourcePrimary), outcome(searchErr), time.Since(start))
		if searchErr != nil {
			primaryErr = searchErr
			return nil
		}
		primaryRes = res
		return nil
	})

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("fallback search panicked", "recover", r)
				err = fmt.Errorf("fallback search panicked: %v", r)
			}
		}()
		start := time.Now()
		res, searchErr := s.fallback.Search(gCtx, query, limit)
		metrics.ObserveProvider(string(SourceFallback), outcome(searchErr), time.Since(start))
		if searchErr != nil {
			return fmt.Errorf("fallback search: %w", searchErr)
		}
		fallbackRes = res
		return nil
	})

	fallbackErr := g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if primaryErr == nil && primaryRes != nil {
		return primaryRes, nil
	}

	if primaryErr != nil && !errors.Is(primaryErr, ErrProviderDisabled) {
		s.log.Warn("primary search failed, using fallback", "query", query, "err", primaryErr)
	}

	if fallbackErr != nil {
		return nil, fmt.Errorf("searching destinations for %q: %w", query, errors.Join(primaryErr, fallbackErr))
	}

	fallbackRes.Source = SourceFallback
	return fallbackRes, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrProviderDisabled):
		return "disabled"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}
