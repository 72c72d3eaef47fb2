package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logvault-systems/logvault/internal/gateway"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/query"
	"github.com/logvault-systems/logvault/internal/queue"
	"github.com/logvault-systems/logvault/internal/ratelimit"
	"github.com/logvault-systems/logvault/internal/registry"
	"github.com/logvault-systems/logvault/internal/storage"
)

func newTestRouter(t *testing.T, readiness map[string]HealthChecker) http.Handler {
	t.Helper()

	backend, err := storage.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	set := storage.NewSet(storage.KindSQLite)
	set.Register(backend)

	reg := registry.NewService(registry.NewInMemoryRepository())
	logger := &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	q := queue.NewMemoryQueue("logs.entry")

	return NewRouter(Deps{
		Gateway:   gateway.NewHandler(gateway.NewService(q, set), reg, &ratelimit.NoOpRateLimiter{}, 100, logger),
		Query:     query.NewHandler(query.NewService(set), reg, logger),
		Registry:  registry.NewHandler(reg, logger),
		Readiness: readiness,
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzAllHealthy(t *testing.T) {
	router := newTestRouter(t, map[string]HealthChecker{
		"queue":   func(ctx context.Context) bool { return true },
		"storage": func(ctx context.Context) bool { return true },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "ready", body.Status)
	assert.Equal(t, "ok", body.Dependencies["queue"])
}

func TestReadyzUnhealthyDependency(t *testing.T) {
	router := newTestRouter(t, map[string]HealthChecker{
		"queue":   func(ctx context.Context) bool { return false },
		"storage": func(ctx context.Context) bool { return true },
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string            `json:"status"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "not ready", body.Status)
	assert.Equal(t, "unavailable", body.Dependencies["queue"])
	assert.Equal(t, "ok", body.Dependencies["storage"])
}

func TestRouterSetsRequestID(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterUnknownRoute(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
