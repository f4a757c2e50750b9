package store

import (
	"context"
	"errors"
	"time"
)

// defaults applied when a session is created without content
const (
	DefaultCode     = "// Start coding together!\n"
	DefaultLanguage = "javascript"
)

// activity log action constants (must match DB check values)
const (
	ActionJoin           = "join"
	ActionEdit           = "edit"
	ActionLanguageChange = "language_change"
	ActionLeave          = "leave"
)

// returned by Get when no session exists for the given id
var ErrNotFound = errors.New("session not found")

// Store is the durable persistence bridge for sessions and activity
// telemetry. Save is an upsert: whichever write lands last fully
// determines the stored code/language/name.
type Store interface {
	Save(ctx context.Context, id, name, code, language string) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)
	ListRecent(ctx context.Context, limit int) ([]*Session, error)
	Delete(ctx context.Context, id string) (bool, error)
	AppendActivity(ctx context.Context, entry *ActivityLogEntry) (int64, error)
	Stats(ctx context.Context, id string) (*SessionStats, error)
	MostActive(ctx context.Context, window time.Duration, limit int) ([]*ActiveSessionSummary, error)
}

// represents a durably persisted collaborative session
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// represents one append-only activity log row. Metadata is
// action-specific (e.g. code length for edits).
type ActivityLogEntry struct {
	UserID    string         `json:"user_id"`
	SessionID string         `json:"session_id"`
	Action    string         `json:"action"`
	Metadata  map[string]any `json:"metadata"`
	Timestamp time.Time      `json:"timestamp"`
}

// aggregate statistics for a single session
type SessionStats struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Language     string     `json:"language"`
	CreatedAt    time.Time  `json:"created_at"`
	UniqueUsers  int        `json:"unique_users"`
	TotalEdits   int        `json:"total_edits"`
	LastActivity *time.Time `json:"last_activity,omitempty"`
}

// one row of the most-active-sessions analytics query
type ActiveSessionSummary struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Language  string `json:"language"`
	UserCount int    `json:"user_count"`
	EditCount int    `json:"edit_count"`
}
