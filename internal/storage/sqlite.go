package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/logvault-systems/logvault/internal/metrics"
	"github.com/logvault-systems/logvault/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS logs (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	ts INTEGER NOT NULL,
	level TEXT NOT NULL,
	service TEXT NOT NULL,
	message TEXT NOT NULL,
	metadata TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_logs_project_ts ON logs (project_id, ts DESC);
CREATE INDEX IF NOT EXISTS idx_logs_project_service ON logs (project_id, service);
`

// SQLiteBackend stores entries in a local SQLite database. It is the
// default backend and the only one with no external dependency.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLite opens (creating if needed) the database at path. Use
// ":memory:" for an ephemeral database.
func NewSQLite(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	// modernc.org/sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}

	return &SQLiteBackend{db: db}, nil
}

func (b *SQLiteBackend) Kind() Kind { return KindSQLite }

func (b *SQLiteBackend) Write(ctx context.Context, entry *models.LogEntry) error {
	start := time.Now()
	defer func() {
		metrics.StorageDuration.WithLabelValues(string(KindSQLite)).Observe(time.Since(start).Seconds())
	}()

	metadata, err := json.Marshal(entry.Metadata)
	if err != nil {
		return &Error{Backend: KindSQLite, Op: "write", Transient: false, Err: err}
	}

	_, err = b.db.ExecContext(ctx, `
		INSERT INTO logs (id, project_id, ts, level, service, message, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.ProjectID, entry.Timestamp.UnixNano(),
		string(entry.Level), entry.Service, entry.Message, string(metadata),
	)
	if err != nil {
		return &Error{Backend: KindSQLite, Op: "write", Transient: true, Err: err}
	}
	return nil
}

func (b *SQLiteBackend) WriteBatch(ctx context.Context, entries []*models.LogEntry) []error {
	return writeEach(ctx, b, entries)
}

func (b *SQLiteBackend) Query(ctx context.Context, filter Filter) (*Page, error) {
	start := time.Now()
	defer func() {
		metrics.QueryDuration.WithLabelValues(string(KindSQLite)).Observe(time.Since(start).Seconds())
	}()

	where, args := sqliteWhere(filter)

	var total int
	countQuery := "SELECT COUNT(*) FROM logs WHERE " + where
	if err := b.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, &Error{Backend: KindSQLite, Op: "query", Transient: true, Err: err}
	}

	query := `
		SELECT id, project_id, ts, level, service, message, metadata
		FROM logs WHERE ` + where + `
		ORDER BY ts DESC, id DESC
		LIMIT ? OFFSET ?`
	rows, err := b.db.QueryContext(ctx, query, append(args, filter.Size, filter.Offset())...)
	if err != nil {
		return nil, &Error{Backend: KindSQLite, Op: "query", Transient: true, Err: err}
	}
	defer rows.Close()

	entries := make([]models.LogEntry, 0, filter.Size)
	for rows.Next() {
		var (
			entry    models.LogEntry
			ts       int64
			level    string
			metadata string
		)
		if err := rows.Scan(&entry.ID, &entry.ProjectID, &ts, &level, &entry.Service, &entry.Message, &metadata); err != nil {
			return nil, &Error{Backend: KindSQLite, Op: "query", Transient: true, Err: err}
		}
		entry.Timestamp = time.Unix(0, ts).UTC()
		entry.Level = models.Level(level)
		if metadata != "" && metadata != "{}" {
			if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
				return nil, &Error{Backend: KindSQLite, Op: "query", Transient: false, Err: err}
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Backend: KindSQLite, Op: "query", Transient: true, Err: err}
	}

	return &Page{Entries: entries, Total: total}, nil
}

func (b *SQLiteBackend) ListServices(ctx context.Context, projectID string) ([]string, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT DISTINCT service FROM logs WHERE project_id = ? ORDER BY service", projectID)
	if err != nil {
		return nil, &Error{Backend: KindSQLite, Op: "list services", Transient: true, Err: err}
	}
	defer rows.Close()

	services := make([]string, 0)
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, &Error{Backend: KindSQLite, Op: "list services", Transient: true, Err: err}
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (b *SQLiteBackend) Healthy(ctx context.Context) bool {
	return b.db.PingContext(ctx) == nil
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}

// sqliteWhere builds the WHERE clause shared by the count and page
// queries. The project constraint always comes first.
func sqliteWhere(filter Filter) (string, []any) {
	clauses := []string{"project_id = ?"}
	args := []any{filter.ProjectID}

	if filter.Level != "" && filter.Level != models.LevelAll {
		clauses = append(clauses, "level = ?")
		args = append(args, string(filter.Level))
	}
	if filter.Service != "" {
		clauses = append(clauses, "service = ?")
		args = append(args, filter.Service)
	}
	if filter.Search != "" {
		// Free-text search spans message, service and the serialized
		// metadata document.
		clauses = append(clauses, "(message LIKE ? ESCAPE '\\' OR service LIKE ? ESCAPE '\\' OR metadata LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(filter.Search) + "%"
		args = append(args, pattern, pattern, pattern)
	}
	if filter.Start != nil {
		clauses = append(clauses, "ts >= ?")
		args = append(args, filter.Start.UnixNano())
	}
	if filter.End != nil {
		clauses = append(clauses, "ts <= ?")
		args = append(args, filter.End.UnixNano())
	}

	return strings.Join(clauses, " AND "), args
}

func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}
