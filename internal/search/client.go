package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/neexbeast/tripsync/internal/destination"
)

const searchPath = "/api/destinations/search"

var (
	// ErrRateLimited is returned when the endpoint rejects the caller with 429.
	ErrRateLimited = errors.New("search rate limited")
	// ErrCancelled is returned by Orchestrator.Search when a newer dispatch
	// or Close superseded the request.
	ErrCancelled = errors.New("search cancelled")
	// ErrClosed is returned by Orchestrator.Search after Close.
	ErrClosed = errors.New("orchestrator closed")
)

// ValidationError carries the server's explanation of a rejected query.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return "invalid search: " + e.Message
}

// Client performs one search request. Implementations must honor ctx cancellation.
type Client interface {
	Search(ctx context.Context, query string, limit int) (*destination.SearchResult, error)
}

// HTTPClient calls the search endpoint of a running server.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient constructs an HTTPClient for the server at baseURL.
// A nil hc uses a client with a 10-second timeout.
func NewHTTPClient(baseURL string, hc *http.Client) *HTTPClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPClient{baseURL: strings.TrimRight(baseURL, "/"), client: hc}
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type searchResponse struct {
	Destinations []destination.Destination `json:"destinations"`
	HasMore      bool                      `json:"hasMore"`
	Source       destination.Source        `json:"source"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Search POSTs the query and maps the response onto a SearchResult.
func (c *HTTPClient) Search(ctx context.Context, query string, limit int) (*destination.SearchResult, error) {
	body, err := json.Marshal(searchRequest{Query: query, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+searchPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", searchPath, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests:
		return nil, fmt.Errorf("searching %q: %w", query, ErrRateLimited)
	case http.StatusBadRequest:
		var e errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&e); err != nil || e.Error == "" {
			return nil, &ValidationError{Message: "Invalid search request"}
		}
		return nil, &ValidationError{Message: e.Error}
	default:
		return nil, fmt.Errorf("POST %s returned status %d", searchPath, resp.StatusCode)
	}

	var out searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}
	if out.Destinations == nil {
		out.Destinations = []destination.Destination{}
	}

	return &destination.SearchResult{
		Destinations: out.Destinations,
		HasMore:      out.HasMore,
		Source:       out.Source,
	}, nil
}
