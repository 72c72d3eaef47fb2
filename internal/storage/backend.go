// Package storage adapts the pipeline to its interchangeable storage
// backends. Every backend presents the same contract so the consumer and
// the query service never branch on backend specifics.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/logvault-systems/logvault/internal/models"
)

// Kind names a storage backend.
type Kind string

const (
	KindSQLite        Kind = "sqlite"
	KindElasticsearch Kind = "elasticsearch"
	KindS3            Kind = "s3"
)

// ErrUnknownBackend is returned when a backend name is not registered.
var ErrUnknownBackend = errors.New("unknown storage backend")

// ParseKind validates a backend name.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindSQLite, KindElasticsearch, KindS3:
		return Kind(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBackend, s)
}

// Filter narrows a log query. ProjectID is always set by the caller from
// the authenticated key, never from client input. Level ALL and the zero
// values mean "no constraint" for their dimension.
type Filter struct {
	ProjectID string
	Level     models.Level
	Service   string
	Search    string
	Start     *time.Time
	End       *time.Time

	// Page is 1-based; Size is the page length.
	Page int
	Size int
}

// Offset returns the number of entries to skip for the requested page.
func (f Filter) Offset() int {
	return (f.Page - 1) * f.Size
}

// Page is one page of query results with the exact total match count.
type Page struct {
	Entries []models.LogEntry
	Total   int
}

// Backend stores and retrieves log entries for one storage technology.
// Implementations scope every operation to the filter's project and sort
// query results newest first, breaking timestamp ties by ID descending.
type Backend interface {
	Kind() Kind

	Write(ctx context.Context, entry *models.LogEntry) error

	// WriteBatch writes entries best-effort, one outcome per entry (nil
	// marks success). Entries committed before a failure stay committed.
	WriteBatch(ctx context.Context, entries []*models.LogEntry) []error

	Query(ctx context.Context, filter Filter) (*Page, error)

	// ListServices returns the distinct service names seen for a project.
	ListServices(ctx context.Context, projectID string) ([]string, error)

	Healthy(ctx context.Context) bool
	Close() error
}

// writeEach implements best-effort WriteBatch as sequential single
// writes, one outcome per entry.
func writeEach(ctx context.Context, b Backend, entries []*models.LogEntry) []error {
	outcomes := make([]error, len(entries))
	for i, entry := range entries {
		outcomes[i] = b.Write(ctx, entry)
	}
	return outcomes
}

// Error wraps a backend failure and classifies it for the consumer's
// retry decision. Transient failures are worth retrying; permanent ones
// are not.
type Error struct {
	Backend   Kind
	Op        string
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTransient reports whether err is a backend failure worth retrying.
// Unclassified errors count as transient so unknown failures get the
// benefit of the retry budget.
func IsTransient(err error) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Transient
	}
	return true
}

// Set holds the configured backends keyed by kind, with one default used
// when a request names no backend. The set is built once at startup and
// read-only afterwards.
type Set struct {
	backends map[Kind]Backend
	def      Kind
}

func NewSet(def Kind) *Set {
	return &Set{
		backends: make(map[Kind]Backend),
		def:      def,
	}
}

func (s *Set) Register(b Backend) {
	s.backends[b.Kind()] = b
}

// Get resolves a backend by name, falling back to the default when name
// is empty.
func (s *Set) Get(name string) (Backend, error) {
	kind := s.def
	if name != "" {
		parsed, err := ParseKind(name)
		if err != nil {
			return nil, err
		}
		kind = parsed
	}

	b, ok := s.backends[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q not configured", ErrUnknownBackend, kind)
	}
	return b, nil
}

// Default returns the default backend.
func (s *Set) Default() (Backend, error) {
	return s.Get("")
}

// Kinds lists the registered backend names.
func (s *Set) Kinds() []Kind {
	kinds := make([]Kind, 0, len(s.backends))
	for k := range s.backends {
		kinds = append(kinds, k)
	}
	return kinds
}

// Close closes every registered backend, returning the first error.
func (s *Set) Close() error {
	var firstErr error
	for _, b := range s.backends {
		if err := b.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// TotalPages computes the page count for a total at the given page size.
func TotalPages(total, size int) int {
	if size <= 0 {
		return 0
	}
	return (total + size - 1) / size
}
