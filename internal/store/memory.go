package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a mutex-guarded in-memory Store with the same upsert
// and query semantics as the Postgres implementation. Used by tests
// and by local runs without a configured database.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	activities []*ActivityLogEntry
	nextID     int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*Session),
	}
}

func (m *MemoryStore) Save(_ context.Context, id, name, code, language string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()

	existing, ok := m.sessions[id]
	if !ok {
		session := &Session{
			ID:        id,
			Name:      name,
			Code:      code,
			Language:  language,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.sessions[id] = session

		copied := *session
		return &copied, nil
	}

	existing.Name = name
	existing.Code = code
	existing.Language = language
	existing.UpdatedAt = now

	copied := *existing
	return &copied, nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	copied := *session
	return &copied, nil
}

func (m *MemoryStore) ListRecent(_ context.Context, limit int) ([]*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	sessions := make([]*Session, 0, len(m.sessions))

	for _, session := range m.sessions {
		copied := *session
		copied.Code = "" // listings omit code bodies
		sessions = append(sessions, &copied)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})

	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[id]; !ok {
		return false, nil
	}

	delete(m.sessions, id)
	return true, nil
}

func (m *MemoryStore) AppendActivity(_ context.Context, entry *ActivityLogEntry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	copied := *entry
	if copied.Timestamp.IsZero() {
		copied.Timestamp = time.Now()
	}

	m.activities = append(m.activities, &copied)
	m.nextID++

	return m.nextID, nil
}

func (m *MemoryStore) Stats(_ context.Context, id string) (*SessionStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}

	stats := &SessionStats{
		ID:        session.ID,
		Name:      session.Name,
		Language:  session.Language,
		CreatedAt: session.CreatedAt,
	}

	users := make(map[string]struct{})

	for _, entry := range m.activities {
		if entry.SessionID != id {
			continue
		}

		users[entry.UserID] = struct{}{}

		if entry.Action == ActionEdit {
			stats.TotalEdits++
		}

		if stats.LastActivity == nil || entry.Timestamp.After(*stats.LastActivity) {
			ts := entry.Timestamp
			stats.LastActivity = &ts
		}
	}

	stats.UniqueUsers = len(users)
	return stats, nil
}

func (m *MemoryStore) MostActive(_ context.Context, window time.Duration, limit int) ([]*ActiveSessionSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	since := time.Now().Add(-window)
	users := make(map[string]map[string]struct{})
	edits := make(map[string]int)

	for _, entry := range m.activities {
		if !entry.Timestamp.After(since) {
			continue
		}

		if users[entry.SessionID] == nil {
			users[entry.SessionID] = make(map[string]struct{})
		}

		users[entry.SessionID][entry.UserID] = struct{}{}

		if entry.Action == ActionEdit {
			edits[entry.SessionID]++
		}
	}

	summaries := make([]*ActiveSessionSummary, 0, len(users))

	for sessionID, sessionUsers := range users {
		session, ok := m.sessions[sessionID]
		if !ok {
			continue
		}

		summaries = append(summaries, &ActiveSessionSummary{
			ID:        session.ID,
			Name:      session.Name,
			Language:  session.Language,
			UserCount: len(sessionUsers),
			EditCount: edits[sessionID],
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].EditCount > summaries[j].EditCount
	})

	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}

	return summaries, nil
}

// returns the recorded activity entries for a session, oldest first.
// Test helper; not part of the Store interface.
func (m *MemoryStore) ActivityLog(sessionID string) []*ActivityLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := make([]*ActivityLogEntry, 0)

	for _, entry := range m.activities {
		if entry.SessionID == sessionID {
			copied := *entry
			entries = append(entries, &copied)
		}
	}

	return entries
}
