package seeder

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/models"
)

func testLogger() *logging.Logger {
	return &logging.Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestLoadScenario(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway_url: http://localhost:9999
api_key: secret:proj-1
backend: elasticsearch
count: 42
batch_size: 7
services: [api, worker]
levels:
  - level: INFO
    weight: 9
  - level: ERROR
    weight: 1
`), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", s.GatewayURL)
	assert.Equal(t, "secret:proj-1", s.APIKey)
	assert.Equal(t, "elasticsearch", s.Backend)
	assert.Equal(t, 42, s.Count)
	assert.Equal(t, 7, s.BatchSize)
	assert.Equal(t, []string{"api", "worker"}, s.Services)
	require.Len(t, s.Levels, 2)
}

func TestLoadScenarioDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_key: k:p\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8080", s.GatewayURL)
	assert.Equal(t, 100, s.Count)
	assert.Equal(t, 10, s.BatchSize)
	assert.NotEmpty(t, s.Services)
	assert.NotEmpty(t, s.Levels)
}

func TestLoadScenarioRequiresAPIKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte("count: 5\n"), 0o644))

	_, err := LoadScenario(path)
	assert.Error(t, err)
}

func TestRunPostsBatches(t *testing.T) {
	var batches [][]models.IngestRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ingest/batch", r.URL.Path)
		assert.Equal(t, "secret:proj-1", r.Header.Get("X-API-Key"))

		var batch []models.IngestRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&batch))
		batches = append(batches, batch)

		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(models.BatchIngestResponse{
			Status: "accepted", Queued: len(batch),
		})
	}))
	defer srv.Close()

	scenario := &Scenario{
		GatewayURL: srv.URL,
		APIKey:     "secret:proj-1",
		Count:      25,
		BatchSize:  10,
	}
	scenario.applyDefaults()

	queued, failed, err := New(scenario, testLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25, queued)
	assert.Equal(t, 0, failed)

	// 10 + 10 + 5
	require.Len(t, batches, 3)
	assert.Len(t, batches[2], 5)

	// Generated entries are valid ingest requests.
	for _, batch := range batches {
		for _, req := range batch {
			assert.NotEmpty(t, req.Message)
			assert.NotEmpty(t, req.Service)
			_, err := models.ParseLevel(req.Level)
			assert.NoError(t, err)
			_, err = time.Parse(time.RFC3339, req.Timestamp)
			assert.NoError(t, err)
		}
	}
}

func TestRunStopsOnGatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	scenario := &Scenario{GatewayURL: srv.URL, APIKey: "bad:key", Count: 10, BatchSize: 5}
	scenario.applyDefaults()

	_, _, err := New(scenario, testLogger()).Run(context.Background())
	assert.Error(t, err)
}

func TestRunHonorsBackendSelector(t *testing.T) {
	var gotBackend string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBackend = r.URL.Query().Get("backend")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(models.BatchIngestResponse{Queued: 1})
	}))
	defer srv.Close()

	scenario := &Scenario{GatewayURL: srv.URL, APIKey: "k:p", Backend: "s3", Count: 1, BatchSize: 1}
	scenario.applyDefaults()

	_, _, err := New(scenario, testLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s3", gotBackend)
}
