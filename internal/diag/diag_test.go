package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tiercache/pkg/stores"
	"tiercache/pkg/tiercache"
)

func TestSelfTestAllChecksPass(t *testing.T) {
	results := SelfTest(context.Background())

	require.Len(t, results, 6)
	for _, r := range results {
		assert.True(t, r.Passed, "check %s failed: %s", r.Name, r.Detail)
	}
	assert.True(t, AllPassed(results))
}

func TestHealthEndpoint(t *testing.T) {
	cache := tiercache.New(stores.NewMemoryStore(0), tiercache.Config{})
	handler := NewHandler(cache, nil)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestStatsEndpoint(t *testing.T) {
	cache := tiercache.New(stores.NewMemoryStore(0), tiercache.Config{})
	cache.Set(context.Background(), "a", 1, time.Hour)
	cache.Get(context.Background(), "a")

	handler := NewHandler(cache, nil)
	req := httptest.NewRequest("GET", "/api/stats", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats tiercache.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Memory.Size)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestSelfTestEndpoint(t *testing.T) {
	cache := tiercache.New(stores.NewMemoryStore(0), tiercache.Config{})
	handler := NewHandler(cache, nil)

	req := httptest.NewRequest("POST", "/api/selftest", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Passed bool          `json:"passed"`
		Checks []CheckResult `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Passed)
	assert.Len(t, body.Checks, 6)
}

func TestSelfTestEndpointRejectsGet(t *testing.T) {
	cache := tiercache.New(stores.NewMemoryStore(0), tiercache.Config{})
	handler := NewHandler(cache, nil)

	req := httptest.NewRequest("GET", "/api/selftest", nil)
	rec := httptest.NewRecorder()
	handler.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
