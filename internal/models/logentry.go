package models

import (
	"fmt"
	"strings"
	"time"
)

// Level is a log severity level. The set is closed; anything else is
// rejected at ingestion time.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"

	// LevelAll is only valid as a query filter value, never on an entry.
	LevelAll Level = "ALL"
)

// ParseLevel normalizes and validates a level string. An empty string
// defaults to INFO; this is the documented default, not a coercion of
// bad input. ALL is not an entry level and is rejected here; callers
// that accept it as a filter value handle it before parsing.
func ParseLevel(s string) (Level, error) {
	if s == "" {
		return LevelInfo, nil
	}
	switch l := Level(strings.ToUpper(s)); l {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical:
		return l, nil
	default:
		return "", fmt.Errorf("unknown log level %q", s)
	}
}

// LogEntry is a single accepted log record. The ID and ProjectID are
// assigned by the ingestion gateway; entries are immutable once accepted.
type LogEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     Level          `json:"level"`
	Service   string         `json:"service"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	ProjectID string         `json:"project_id"`
}
