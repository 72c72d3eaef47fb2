// Package server wires the HTTP surface of the pipeline: ingestion,
// query, registry management and operational endpoints.
package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/logvault-systems/logvault/internal/gateway"
	"github.com/logvault-systems/logvault/internal/httputil"
	"github.com/logvault-systems/logvault/internal/middleware"
	"github.com/logvault-systems/logvault/internal/query"
	"github.com/logvault-systems/logvault/internal/registry"
)

// HealthChecker reports whether a dependency is ready to serve.
type HealthChecker func(ctx context.Context) bool

// Deps collects everything the router serves.
type Deps struct {
	Gateway  *gateway.Handler
	Query    *query.Handler
	Registry *registry.Handler

	// Readiness holds named dependency checks for /readyz.
	Readiness map[string]HealthChecker
}

// NewRouter constructs the ServeMux with all pipeline routes registered.
func NewRouter(deps Deps) http.Handler {
	mux := http.NewServeMux()

	// Ingestion
	mux.HandleFunc("POST /ingest", deps.Gateway.Ingest)
	mux.HandleFunc("POST /ingest/batch", deps.Gateway.IngestBatch)

	// Query
	mux.HandleFunc("GET /logs", deps.Query.Logs)
	mux.HandleFunc("GET /logs/services", deps.Query.Services)

	// Registry management
	mux.HandleFunc("POST /join", deps.Registry.Join)
	mux.HandleFunc("POST /projects", deps.Registry.CreateProject)
	mux.HandleFunc("GET /projects", deps.Registry.ListProjects)
	mux.HandleFunc("GET /projects/{id}/api-key", deps.Registry.RotateAPIKey)

	// Health endpoints
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", handleReadyz(deps.Readiness))

	// Prometheus metrics
	mux.Handle("GET /metrics", promhttp.Handler())

	return middleware.RequestID(mux)
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleReadyz runs every dependency check; any failure flips the
// response to 503 with the per-dependency breakdown.
func handleReadyz(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		results := make(map[string]string, len(checks))

		for name, check := range checks {
			if check(r.Context()) {
				results[name] = "ok"
				continue
			}
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
		}

		httputil.WriteJSON(w, status, map[string]any{
			"status":       statusWord(status),
			"dependencies": results,
		})
	}
}

func statusWord(status int) string {
	if status == http.StatusOK {
		return "ready"
	}
	return "not ready"
}
