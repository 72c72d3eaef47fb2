package registry

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/logvault-systems/logvault/internal/httputil"
	"github.com/logvault-systems/logvault/internal/logging"
	"github.com/logvault-systems/logvault/internal/models"
)

// Handler exposes user and project management over HTTP. All project
// endpoints require a management token; /join is the only open route.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Join registers a new user and returns the one-time management token.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	user, token, err := h.service.CreateUser(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "create user failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to create user")
		return
	}

	h.logger.InfoContext(r.Context(), "user created", "user_id", user.ID, "username", user.Username)

	httputil.WriteJSON(w, http.StatusCreated, models.CreateUserResponse{
		ID:       user.ID,
		Username: user.Username,
		Token:    token,
	})
}

// CreateProject creates a project for the authenticated user and returns
// the API key. The key is shown once and never retrievable afterwards.
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", "invalid request body")
		return
	}

	project, apiKey, err := h.service.CreateProject(r.Context(), user.ID, req.Name, req.Description)
	if err != nil {
		if errors.Is(err, ErrInvalidName) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "create project failed", "error", err, "user_id", user.ID)
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to create project")
		return
	}

	h.logger.InfoContext(r.Context(), "project created",
		"project_id", project.ID, "user_id", user.ID, "name", project.Name)

	httputil.WriteJSON(w, http.StatusCreated, models.CreateProjectResponse{
		ID:          project.ID,
		Name:        project.Name,
		Description: project.Description,
		APIKey:      apiKey,
		OwnerID:     project.OwnerID,
		CreatedAt:   project.CreatedAt,
	})
}

// ListProjects returns the authenticated user's projects. API keys are
// never included.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	projects, err := h.service.ListProjects(r.Context(), user.ID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list projects failed", "error", err, "user_id", user.ID)
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to list projects")
		return
	}

	if projects == nil {
		projects = []*models.Project{}
	}
	httputil.WriteJSON(w, http.StatusOK, projects)
}

// RotateAPIKey replaces the project's API key. The retired key stops
// authenticating immediately.
func (h *Handler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	user, ok := h.authenticate(w, r)
	if !ok {
		return
	}

	projectID := r.PathValue("id")
	if projectID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "invalid_argument", "project id required")
		return
	}

	apiKey, err := h.service.RotateAPIKey(r.Context(), user.ID, projectID)
	if err != nil {
		switch {
		case errors.Is(err, ErrProjectNotFound):
			httputil.WriteError(w, http.StatusNotFound, "not_found", "project not found")
		case errors.Is(err, ErrForbidden):
			httputil.WriteError(w, http.StatusForbidden, "forbidden", "project does not belong to user")
		default:
			h.logger.ErrorContext(r.Context(), "rotate key failed", "error", err, "project_id", projectID)
			httputil.WriteError(w, http.StatusInternalServerError, "internal", "failed to rotate key")
		}
		return
	}

	h.logger.InfoContext(r.Context(), "api key rotated", "project_id", projectID, "user_id", user.ID)

	httputil.WriteJSON(w, http.StatusOK, models.RotateKeyResponse{
		ProjectID: projectID,
		APIKey:    apiKey,
		Message:   "previous key is no longer valid",
	})
}

func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	token := bearerToken(r)
	if token == "" {
		httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "management token required")
		return nil, false
	}

	user, err := h.service.AuthenticateManagement(r.Context(), token)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			httputil.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid management token")
			return nil, false
		}
		h.logger.ErrorContext(r.Context(), "management auth failed", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "internal", "authentication failed")
		return nil, false
	}

	return user, true
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
