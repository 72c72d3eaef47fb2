package query

import (
	"errors"
	"net/http"

	"github.com/logvault-systems/logvault/internal/httputil"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/models"
	"github.com/logvault-systems/logvault/internal/registry"
	"github.com/logvault-systems/logvault/internal/storage"
)

// Handler serves the read side: GET /logs and GET /logs/services.
type Handler struct {
	service  *Service
	registry *registry.Service
	logger   *logging.Logger
}

func NewHandler(service *Service, reg *registry.Service, logger *logging.Logger) *Handler {
	return &Handler{
		service:  service,
		registry: reg,
		logger:   logger,
	}
}

// Logs returns a filtered, paginated page of the caller's log entries.
func (h *Handler) Logs(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	params := r.URL.Query()

	filter, err := ParseFilter(params, projectID)
	if err != nil {
		var bre *BadRequestError
		if errors.As(err, &bre) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", bre.Reason)
			return
		}
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to parse query")
		return
	}

	// A project_id parameter can only narrow to nothing, never widen.
	foreign := false
	if requested := params.Get("project_id"); requested != "" && requested != projectID {
		foreign = true
	}

	resp, err := h.service.Query(r.Context(), params.Get("backend"), filter, foreign)
	if err != nil {
		h.writeQueryError(w, r, err, projectID)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, resp)
}

// Services returns the distinct service names seen for the caller's
// project.
func (h *Handler) Services(w http.ResponseWriter, r *http.Request) {
	projectID, ok := h.authorize(w, r)
	if !ok {
		return
	}

	services, err := h.service.ListServices(r.Context(), r.URL.Query().Get("backend"), projectID)
	if err != nil {
		h.writeQueryError(w, r, err, projectID)
		return
	}

	if services == nil {
		services = []string{}
	}
	httputil.WriteJSON(w, http.StatusOK, models.ServicesResponse{Services: services})
}

func (h *Handler) writeQueryError(w http.ResponseWriter, r *http.Request, err error, projectID string) {
	switch {
	case errors.Is(err, storage.ErrUnknownBackend):
		httputil.WriteError(w, http.StatusUnprocessableEntity, "validation_failed", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "query failed", "error", err, "project_id", projectID)
		httputil.WriteError(w, http.StatusServiceUnavailable, "unavailable", "storage backend unavailable")
	}
}

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

	return projectID, true
}
