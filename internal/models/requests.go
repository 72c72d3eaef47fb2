package models

import "time"

// IngestRequest is the wire shape of a single submitted log entry.
// Level, Timestamp and Metadata are optional; ProjectID is never read
// from the client.
type IngestRequest struct {
	Message   string         `json:"message"`
	Level     string         `json:"level,omitempty"`
	Service   string         `json:"service"`
	Timestamp string         `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// IngestResponse acknowledges a single accepted entry.
type IngestResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// BatchIngestResponse reports per-entry outcomes for a batch submission.
// Queued+Failed always equals the submitted batch size.
type BatchIngestResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Queued  int    `json:"queued"`
	Failed  int    `json:"failed"`
}

// QueryResponse is the normalized page shape returned by /logs for every
// storage backend.
type QueryResponse struct {
	Logs       []LogEntry `json:"logs"`
	Total      int        `json:"total"`
	Page       int        `json:"page"`
	Size       int        `json:"size"`
	TotalPages int        `json:"total_pages"`
}

// ServicesResponse lists the distinct service names observed for a project.
type ServicesResponse struct {
	Services []string `json:"services"`
}

// CreateUserResponse returns the one-time management token.
type CreateUserResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Token    string `json:"token"`
}

// CreateProjectRequest creates a project for the authenticated user.
type CreateProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// CreateProjectResponse returns the one-time formatted API key
// ("<raw>:<project_id>").
type CreateProjectResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	APIKey      string    `json:"api_key"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// RotateKeyResponse returns a freshly generated API key. The previous key
// is invalidated as part of the rotation.
type RotateKeyResponse struct {
	ProjectID string `json:"project_id"`
	APIKey    string `json:"api_key"`
	Message   string `json:"message"`
}
