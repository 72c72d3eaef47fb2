package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/logvault-systems/logvault/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	b, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { b.Close() })
	return b
}

func writeEntry(t *testing.T, b Backend, id, project, service string, level models.Level, message string, ts time.Time) {
	t.Helper()
	err := b.Write(context.Background(), &models.LogEntry{
		ID:        id,
		Timestamp: ts,
		Level:     level,
		Service:   service,
		Message:   message,
		Metadata:  map[string]any{"seq": id},
		ProjectID: project,
	})
	require.NoError(t, err)
}

func TestSQLiteWriteAndQuery(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC().Truncate(time.Millisecond)

	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "started", now.Add(-2*time.Minute))
	writeEntry(t, b, "e2", "p1", "api", models.LevelError, "boom", now.Add(-1*time.Minute))
	writeEntry(t, b, "e3", "p1", "worker", models.LevelInfo, "tick", now)

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Entries, 3)

	// Newest first.
	assert.Equal(t, "e3", page.Entries[0].ID)
	assert.Equal(t, "e2", page.Entries[1].ID)
	assert.Equal(t, "e1", page.Entries[2].ID)

	// Metadata round-trips.
	assert.Equal(t, "e3", page.Entries[0].Metadata["seq"])
}

func TestSQLiteWriteBatchPartialFailure(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	entry := func(id string, metadata map[string]any) *models.LogEntry {
		return &models.LogEntry{
			ID:        id,
			Timestamp: now,
			Level:     models.LevelInfo,
			Service:   "api",
			Message:   "batched",
			Metadata:  metadata,
			ProjectID: "p1",
		}
	}

	// Middle entry carries metadata that cannot be serialized.
	outcomes := b.WriteBatch(context.Background(), []*models.LogEntry{
		entry("e1", nil),
		entry("e2", map[string]any{"bad": make(chan int)}),
		entry("e3", nil),
	})
	require.Len(t, outcomes, 3)
	assert.NoError(t, outcomes[0])
	assert.Error(t, outcomes[1])
	assert.False(t, IsTransient(outcomes[1]))
	assert.NoError(t, outcomes[2])

	// Entries around the failure stay committed.
	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
}

func TestSQLiteWriteIdempotent(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "once", now)
	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "once", now)

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
}

func TestSQLiteProjectIsolation(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "mine", now)
	writeEntry(t, b, "e2", "p2", "api", models.LevelInfo, "theirs", now)

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "e1", page.Entries[0].ID)

	// A project with no entries is an empty result, not an error.
	page, err = b.Query(context.Background(), Filter{ProjectID: "p3", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
	assert.Empty(t, page.Entries)
}

func TestSQLiteFilters(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "api", models.LevelError, "connection refused", now.Add(-3*time.Hour))
	writeEntry(t, b, "e2", "p1", "api", models.LevelInfo, "request served", now.Add(-2*time.Hour))
	writeEntry(t, b, "e3", "p1", "worker", models.LevelError, "job failed", now.Add(-1*time.Hour))

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"by level", Filter{ProjectID: "p1", Level: models.LevelError, Page: 1, Size: 10}, []string{"e3", "e1"}},
		{"level ALL matches everything", Filter{ProjectID: "p1", Level: models.LevelAll, Page: 1, Size: 10}, []string{"e3", "e2", "e1"}},
		{"by service", Filter{ProjectID: "p1", Service: "worker", Page: 1, Size: 10}, []string{"e3"}},
		{"by search", Filter{ProjectID: "p1", Search: "refused", Page: 1, Size: 10}, []string{"e1"}},
		{"combined", Filter{ProjectID: "p1", Level: models.LevelError, Service: "api", Page: 1, Size: 10}, []string{"e1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := b.Query(context.Background(), tt.filter)
			require.NoError(t, err)
			ids := make([]string, 0, len(page.Entries))
			for _, e := range page.Entries {
				ids = append(ids, e.ID)
			}
			assert.Equal(t, tt.want, ids)
			assert.Equal(t, len(tt.want), page.Total)
		})
	}
}

func TestSQLiteSearchSpansFields(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	err := b.Write(context.Background(), &models.LogEntry{
		ID:        "e1",
		Timestamp: now,
		Level:     models.LevelInfo,
		Service:   "billing-worker",
		Message:   "run complete",
		Metadata:  map[string]any{"module": "invoicing"},
		ProjectID: "p1",
	})
	require.NoError(t, err)

	// Search covers message, service and metadata, not message alone.
	for _, search := range []string{"complete", "billing", "invoicing"} {
		page, err := b.Query(context.Background(), Filter{
			ProjectID: "p1", Search: search, Page: 1, Size: 10,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Total, "search %q", search)
	}

	page, err := b.Query(context.Background(), Filter{
		ProjectID: "p1", Search: "absent", Page: 1, Size: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)
}

func TestSQLiteTimeRange(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "old", now.Add(-3*time.Hour))
	writeEntry(t, b, "e2", "p1", "api", models.LevelInfo, "mid", now.Add(-2*time.Hour))
	writeEntry(t, b, "e3", "p1", "api", models.LevelInfo, "new", now)

	start := now.Add(-150 * time.Minute)
	end := now.Add(-30 * time.Minute)
	page, err := b.Query(context.Background(), Filter{
		ProjectID: "p1", Start: &start, End: &end, Page: 1, Size: 10,
	})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "e2", page.Entries[0].ID)
}

func TestSQLitePagination(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	for i := 0; i < 25; i++ {
		writeEntry(t, b, fmt.Sprintf("e%02d", i), "p1", "api", models.LevelInfo, "m",
			now.Add(time.Duration(i)*time.Second))
	}

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Entries, 10)
	assert.Equal(t, "e24", page.Entries[0].ID)

	page, err = b.Query(context.Background(), Filter{ProjectID: "p1", Page: 3, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Len(t, page.Entries, 5)
	assert.Equal(t, "e00", page.Entries[4].ID)

	// Past the last page: empty entries, true total.
	page, err = b.Query(context.Background(), Filter{ProjectID: "p1", Page: 4, Size: 10})
	require.NoError(t, err)
	assert.Equal(t, 25, page.Total)
	assert.Empty(t, page.Entries)
}

func TestSQLiteTimestampTieBreak(t *testing.T) {
	b := newTestSQLite(t)
	ts := time.Now().UTC()

	writeEntry(t, b, "aaa", "p1", "api", models.LevelInfo, "first", ts)
	writeEntry(t, b, "zzz", "p1", "api", models.LevelInfo, "second", ts)
	writeEntry(t, b, "mmm", "p1", "api", models.LevelInfo, "third", ts)

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Entries, 3)
	assert.Equal(t, "zzz", page.Entries[0].ID)
	assert.Equal(t, "mmm", page.Entries[1].ID)
	assert.Equal(t, "aaa", page.Entries[2].ID)
}

func TestSQLiteListServices(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "worker", models.LevelInfo, "m", now)
	writeEntry(t, b, "e2", "p1", "api", models.LevelInfo, "m", now)
	writeEntry(t, b, "e3", "p1", "api", models.LevelInfo, "m", now)
	writeEntry(t, b, "e4", "p2", "other", models.LevelInfo, "m", now)

	services, err := b.ListServices(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"api", "worker"}, services)

	services, err = b.ListServices(context.Background(), "p9")
	require.NoError(t, err)
	assert.Empty(t, services)
}

func TestSQLiteSearchEscapesWildcards(t *testing.T) {
	b := newTestSQLite(t)
	now := time.Now().UTC()

	writeEntry(t, b, "e1", "p1", "api", models.LevelInfo, "progress 100%", now)
	writeEntry(t, b, "e2", "p1", "api", models.LevelInfo, "plain message", now)

	page, err := b.Query(context.Background(), Filter{ProjectID: "p1", Search: "100%", Page: 1, Size: 10})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "e1", page.Entries[0].ID)
}

func TestSQLiteHealthy(t *testing.T) {
	b := newTestSQLite(t)
	assert.True(t, b.Healthy(context.Background()))
}
