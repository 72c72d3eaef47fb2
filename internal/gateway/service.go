// Package gateway implements the ingestion edge: it authenticates API
// keys, validates submitted entries, and publishes accepted entries to
// the delivery queue. Nothing is written to storage here.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/logvault-systems/logvault/internal/models"
	"github.com/logvault-systems/logvault/internal/queue"
	"github.com/logvault-systems/logvault/internal/storage"
)

// ValidationError marks an entry the client must fix. It never triggers
// a retry.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// ErrPublish wraps queue failures so the handler can answer 503.
var ErrPublish = errors.New("queue publish failed")

// Service validates and enqueues log entries.
type Service struct {
	publisher queue.Publisher
	backends  *storage.Set
}

func NewService(publisher queue.Publisher, backends *storage.Set) *Service {
	return &Service{
		publisher: publisher,
		backends:  backends,
	}
}

// ResolveBackend validates the backend selector, falling back to the
// default when empty.
func (s *Service) ResolveBackend(name string) (storage.Kind, error) {
	b, err := s.backends.Get(name)
	if err != nil {
		return "", &ValidationError{Reason: fmt.Sprintf("unknown storage backend %q", name)}
	}
	return b.Kind(), nil
}

// ValidateEntry turns a submitted request into an accepted entry,
// assigning the ID, project scope, level default and timestamp.
func (s *Service) ValidateEntry(req *models.IngestRequest, projectID string) (*models.LogEntry, error) {
	if req.Message == "" {
		return nil, &ValidationError{Reason: "message is required"}
	}
	if req.Service == "" {
		return nil, &ValidationError{Reason: "service is required"}
	}

	// ParseLevel accepts only the entry levels; ALL is rejected as
	// unknown, so a filter value can never land on an entry.
	level, err := models.ParseLevel(req.Level)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	timestamp := time.Now().UTC()
	if req.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, &ValidationError{Reason: fmt.Sprintf("invalid timestamp %q: must be RFC 3339", req.Timestamp)}
		}
		timestamp = parsed.UTC()
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("assign entry id: %w", err)
	}

	return &models.LogEntry{
		ID:        id.String(),
		Timestamp: timestamp,
		Level:     level,
		Service:   req.Service,
		Message:   req.Message,
		Metadata:  req.Metadata,
		ProjectID: projectID,
	}, nil
}

// Ingest validates and enqueues a single entry.
func (s *Service) Ingest(ctx context.Context, projectID string, backend storage.Kind, req *models.IngestRequest) (*models.LogEntry, error) {
	entry, err := s.ValidateEntry(req, projectID)
	if err != nil {
		return nil, err
	}

	env := &queue.Envelope{Backend: string(backend), Entry: *entry}
	if err := s.publisher.PublishEntry(ctx, env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return entry, nil
}

// IngestBatch validates and enqueues a batch. Validation failures are
// per-entry; a publish failure aborts the rest of the batch and is
// returned alongside the counts already settled.
func (s *Service) IngestBatch(ctx context.Context, projectID string, backend storage.Kind, reqs []models.IngestRequest) (queued, failed int, err error) {
	for i := range reqs {
		entry, verr := s.ValidateEntry(&reqs[i], projectID)
		if verr != nil {
			var ve *ValidationError
			if errors.As(verr, &ve) {
				failed++
				continue
			}
			return queued, failed, verr
		}

		env := &queue.Envelope{Backend: string(backend), Entry: *entry}
		if perr := s.publisher.PublishEntry(ctx, env); perr != nil {
			return queued, failed, fmt.Errorf("%w: %v", ErrPublish, perr)
		}
		queued++
	}
	return queued, failed, nil
}
