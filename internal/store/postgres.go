package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

// creates a Store backed by a pgx connection pool
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// creates the sessions and activity_logs tables plus their indexes.
// Must be called once before the store is used.
func (s *PostgresStore) Bootstrap(ctx context.Context) error {
	statements := []string{
		queryCreateSessionsTable,
		queryCreateActivityLogsTable,
		queryCreateSessionUpdatedIndex,
		queryCreateActivitySessionIndex,
		queryCreateActivityUserIndex,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

// upserts a session: insert if absent, otherwise overwrite
// name/code/language and bump updated_at
func (s *PostgresStore) Save(ctx context.Context, id, name, code, language string) (*Session, error) {
	var session Session

	err := s.db.QueryRow(ctx, querySaveSession, id, name, code, language).Scan(
		&session.ID,
		&session.Name,
		&session.Code,
		&session.Language,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if err != nil {
		return nil, err
	}

	return &session, nil
}

// retrieves a session by ID; returns ErrNotFound when absent
func (s *PostgresStore) Get(ctx context.Context, id string) (*Session, error) {
	var session Session

	err := s.db.QueryRow(ctx, queryGetSession, id).Scan(
		&session.ID,
		&session.Name,
		&session.Code,
		&session.Language,
		&session.CreatedAt,
		&session.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &session, nil
}

// lists sessions ordered by most recently updated first. Code bodies
// are omitted to keep listings small.
func (s *PostgresStore) ListRecent(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := s.db.Query(ctx, queryListRecentSessions, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	sessions := make([]*Session, 0)

	for rows.Next() {
		var session Session

		err := rows.Scan(
			&session.ID,
			&session.Name,
			&session.Language,
			&session.CreatedAt,
			&session.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// deletes a session; reports whether a row was removed
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	result, err := s.db.Exec(ctx, queryDeleteSession, id)
	if err != nil {
		return false, err
	}

	return result.RowsAffected() > 0, nil
}

// appends one activity log row and returns its id
func (s *PostgresStore) AppendActivity(ctx context.Context, entry *ActivityLogEntry) (int64, error) {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return 0, err
	}

	timestamp := entry.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	var id int64

	err = s.db.QueryRow(
		ctx,
		queryAppendActivity,
		entry.UserID,
		entry.SessionID,
		entry.Action,
		metadataJSON,
		timestamp,
	).Scan(&id)

	if err != nil {
		return 0, err
	}

	return id, nil
}

// returns aggregate statistics for a session joined with its activity
func (s *PostgresStore) Stats(ctx context.Context, id string) (*SessionStats, error) {
	var stats SessionStats

	err := s.db.QueryRow(ctx, querySessionStats, id).Scan(
		&stats.ID,
		&stats.Name,
		&stats.Language,
		&stats.CreatedAt,
		&stats.UniqueUsers,
		&stats.TotalEdits,
		&stats.LastActivity,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, err
	}

	return &stats, nil
}

// returns the sessions with the most edit activity inside the window,
// busiest first
func (s *PostgresStore) MostActive(ctx context.Context, window time.Duration, limit int) ([]*ActiveSessionSummary, error) {
	since := time.Now().Add(-window)

	rows, err := s.db.Query(ctx, queryMostActiveSessions, since, limit)
	if err != nil {
		return nil, err
	}

	defer rows.Close()
	summaries := make([]*ActiveSessionSummary, 0)

	for rows.Next() {
		var summary ActiveSessionSummary

		err := rows.Scan(
			&summary.ID,
			&summary.Name,
			&summary.Language,
			&summary.UserCount,
			&summary.EditCount,
		)
		if err != nil {
			return nil, err
		}

		summaries = append(summaries, &summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}
