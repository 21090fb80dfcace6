package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/neexbeast/tripsync/internal/metrics"
)

func TestRegistryAndHandler(t *testing.T) {
	reg := metrics.InitRegistry()

	metrics.ObserveHTTP("/api/destinations/search", http.MethodPost, http.StatusOK, 12*time.Millisecond)
	metrics.ObserveProvider("google", "ok", 30*time.Millisecond)
	metrics.ObserveRateLimit("denied")
	metrics.ObserveCache("redis", "hit")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	out := string(body)
	assert.Contains(t, out, "tripsync_http_requests_total")
	assert.Contains(t, out, "tripsync_provider_requests_total")
	assert.Contains(t, out, `tripsync_rate_limit_decisions_total{decision="denied"}`)
	assert.Contains(t, out, "tripsync_cache_events_total")
}
