package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/logvault-systems/logvault/internal/httputil"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/metrics"
	"github.com/logvault-systems/logvault/internal/models"
	"github.com/logvault-systems/logvault/internal/ratelimit"
	"github.com/logvault-systems/logvault/internal/registry"
	"github.com/logvault-systems/logvault/internal/storage"
)

// Handler serves the ingestion endpoints. Every request authenticates an
// API key; the resolved project scopes everything downstream.
type Handler struct {
	service      *Service
	registry     *registry.Service
	limiter      ratelimit.RateLimiter
	maxBatchSize int
	logger       *logging.Logger
}

func NewHandler(service *Service, reg *registry.Service, limiter ratelimit.RateLimiter, maxBatchSize int, logger *logging.Logger) *Handler {
	return &Handler{
		service:      service,
		registry:     reg,
		limiter:      limiter,
		maxBatchSize: maxBatchSize,
		logger:       logger,
	}
}

// Ingest accepts a single log entry and queues it for storage.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.authorize(w, r)
	if !ok {
		metrics.EntriesTotal.WithLabelValues("ingest", "unauthorized").Inc()
		return
	}

	backend, ok := h.resolveBackend(w, r)
	if !ok {
		metrics.EntriesTotal.WithLabelValues("ingest", "invalid_backend").Inc()
		return
	}

	var req models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		metrics.EntriesTotal.WithLabelValues("ingest", "bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	entry, err := h.service.Ingest(r.Context(), projectID, backend, &req)
	if err != nil {
		var ve *ValidationError
		switch {
		case errors.As(err, &ve):
			metrics.EntriesTotal.WithLabelValues("ingest", "invalid").Inc()
			httputil.WriteError(w, http.StatusUnprocessableEntity, "validation_failed", ve.Reason)
		case errors.Is(err, ErrPublish):
			metrics.PublishErrors.Inc()
			metrics.EntriesTotal.WithLabelValues("ingest", "unavailable").Inc()
			h.logger.ErrorContext(r.Context(), "queue publish failed", "error", err, "project_id", projectID)
			httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", "log queue unavailable")
		default:
			metrics.EntriesTotal.WithLabelValues("ingest", "error").Inc()
			h.logger.ErrorContext(r.Context(), "ingest failed", "error", err, "project_id", projectID)
			httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to ingest entry")
		}
		return
	}

	metrics.EntriesTotal.WithLabelValues("ingest", "queued").Inc()
	httputil.WriteJSON(w, http.StatusAccepted, models.IngestResponse{
		Status:    "queued",
		Message:   "log entry queued for storage",
		Timestamp: entry.Timestamp,
	})
}

// IngestBatch accepts a batch of entries. Invalid entries fail
// individually; the rest are queued.
func (h *Handler) IngestBatch(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.authorize(w, r)
	if !ok {
		metrics.EntriesTotal.WithLabelValues("batch", "unauthorized").Inc()
		return
	}

	backend, ok := h.resolveBackend(w, r)
	if !ok {
		metrics.EntriesTotal.WithLabelValues("batch", "invalid_backend").Inc()
		return
	}

	var reqs []models.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		metrics.EntriesTotal.WithLabelValues("batch", "bad_request").Inc()
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	if len(reqs) == 0 {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", "batch must not be empty")
		return
	}
	if h.maxBatchSize > 0 && len(reqs) > h.maxBatchSize {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument",
			fmt.Sprintf("batch exceeds maximum size of %d entries", h.maxBatchSize))
		return
	}

	queued, failed, err := h.service.IngestBatch(r.Context(), projectID, backend, reqs)
	if err != nil {
		if errors.Is(err, ErrPublish) {
			metrics.PublishErrors.Inc()
			metrics.EntriesTotal.WithLabelValues("batch", "unavailable").Inc()
			h.logger.ErrorContext(r.Context(), "batch publish failed",
				"error", err, "project_id", projectID, "queued", queued)
			httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable",
				fmt.Sprintf("log queue unavailable; %d of %d entries were queued before the failure", queued, len(reqs)))
			return
		}
		metrics.EntriesTotal.WithLabelValues("batch", "error").Inc()
		h.logger.ErrorContext(r.Context(), "batch ingest failed", "error", err, "project_id", projectID)
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to ingest batch")
		return
	}

	metrics.EntriesTotal.WithLabelValues("batch", "queued").Add(float64(queued))
	if failed > 0 {
		metrics.EntriesTotal.WithLabelValues("batch", "invalid").Add(float64(failed))
	}

	httputil.WriteJSON(w, http.StatusAccepted, models.BatchIngestResponse{
		Status:  "accepted",
		Message: fmt.Sprintf("%d entries queued, %d failed validation", queued, failed),
		Queued:  queued,
		Failed:  failed,
	})
}

// authorize resolves the X-API-Key header to its project, writing the
// error response itself on failure.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	apiKey := r.Header.Get("X-API-Key")
	if apiKey == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "X-API-Key header required")
		return "", false
	}

	projectID, err := h.registry.AuthenticateIngestion(r.Context(), apiKey)
	if err != nil {
		switch {
		case errors.Is(err, registry.ErrKeyRevoked):
			httputil.WriteError(w, http.StatusUnauthorized, "key_revoked", "API key has been rotated; use the current key")
		case errors.Is(err, registry.ErrInvalidKey):
			httputil.WriteError(w, http.StatusUnauthorized, "unauthenticated", "invalid API key")
		default:
			h.logger.ErrorContext(r.Context(), "key authentication failed", "error", err)
			httputil.WriteError(w, http.StatusInternalServerError, "internal", "authentication failed")
		}
		return "", false
	}

	allowed, err := h.limiter.Allow(r.Context(), projectID)
	if err != nil {
		// A broken limiter must not take ingestion down with it.
		h.logger.WarnContext(r.Context(), "rate limit check failed", "error", err, "project_id", projectID)
		return projectID, true
	}
	if !allowed {
		httputil.WriteError(w, http.StatusTooManyRequests, "rate_limited", "project rate limit exceeded")
		return "", false
	}

	return projectID, true
}

func (h *Handler) resolveBackend(w http.ResponseWriter, r *http.Request) (storage.Kind, bool) {
	kind, err := h.service.ResolveBackend(r.URL.Query().Get("backend"))
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			httputil.WriteError(w, http.StatusUnprocessableEntity, "validation_failed", ve.Reason)
			return "", false
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to resolve backend")
		return "", false
	}
	return kind, true
}
