// Package query serves stored log entries back out. Every query is
// scoped to the project of the authenticated API key; pagination and
// response shape are identical across backends.
package query

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/logvault-systems/logvault/internal/models"
	"github.com/logvault-systems/logvault/internal/storage"
)

const (
	defaultPageSize = 50
	maxPageSize     = 1000
)

// BadRequestError marks invalid query parameters.
type BadRequestError struct {
	Reason string
}

func (e *BadRequestError) Error() string { return e.Reason }

// Service executes scoped log queries against a backend set.
type Service struct {
	backends *storage.Set
}

func NewService(backends *storage.Set) *Service {
	return &Service{backends: backends}
}

// ParseFilter builds a storage filter from query parameters, pinning the
// project scope to the authenticated project. A project_id parameter
// naming a different project yields a filter that matches nothing; it
// never widens the scope.
func ParseFilter(params url.Values, projectID string) (storage.Filter, error) {
	filter := storage.Filter{
		ProjectID: projectID,
		Page:      1,
		Size:      defaultPageSize,
	}

	if raw := params.Get("level"); raw != "" {
		// ALL is a legal filter value even though entries never carry it.
		if models.Level(strings.ToUpper(raw)) == models.LevelAll {
			filter.Level = models.LevelAll
		} else {
			level, err := models.ParseLevel(raw)
			if err != nil {
				return storage.Filter{}, &BadRequestError{Reason: err.Error()}
			}
			filter.Level = level
		}
	}

	filter.Service = params.Get("service")
	filter.Search = params.Get("search")

	if raw := params.Get("from_ts"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return storage.Filter{}, &BadRequestError{Reason: fmt.Sprintf("invalid from_ts %q: must be RFC 3339", raw)}
		}
		utc := t.UTC()
		filter.Start = &utc
	}
	if raw := params.Get("to_ts"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return storage.Filter{}, &BadRequestError{Reason: fmt.Sprintf("invalid to_ts %q: must be RFC 3339", raw)}
		}
		utc := t.UTC()
		filter.End = &utc
	}

	if raw := params.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return storage.Filter{}, &BadRequestError{Reason: "page must be an integer >= 1"}
		}
		filter.Page = page
	}
	if raw := params.Get("size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 || size > maxPageSize {
			return storage.Filter{}, &BadRequestError{Reason: fmt.Sprintf("size must be between 1 and %d", maxPageSize)}
		}
		filter.Size = size
	}

	return filter, nil
}

// Query runs a scoped, paginated query against the named backend. An
// explicit foreignProject (a project_id parameter not matching the key's
// project) short-circuits to an empty page.
func (s *Service) Query(ctx context.Context, backendName string, filter storage.Filter, foreignProject bool) (*models.QueryResponse, error) {
	resp := &models.QueryResponse{
		Logs: []models.LogEntry{},
		Page: filter.Page,
		Size: filter.Size,
	}

	if foreignProject {
		return resp, nil
	}

	backend, err := s.backends.Get(backendName)
	if err != nil {
		return nil, err
	}

	page, err := backend.Query(ctx, filter)
	if err != nil {
		return nil, err
	}

	resp.Logs = page.Entries
	resp.Total = page.Total
	resp.TotalPages = storage.TotalPages(page.Total, filter.Size)
	return resp, nil
}

// ListServices returns the distinct service names of the project.
func (s *Service) ListServices(ctx context.Context, backendName, projectID string) ([]string, error) {
	backend, err := s.backends.Get(backendName)
	if err != nil {
		return nil, err
	}
	return backend.ListServices(ctx, projectID)
}
