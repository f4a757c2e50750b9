package registry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/slyxzy/collab-code-editor/internal/logger"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

// creates an empty registry that seeds new live sessions from loader
func New(loader Loader) *Registry {
	return &Registry{
		loader:   loader,
		sessions: make(map[string]*activeSession),
	}
}

// returns the live state for a session, creating it if absent. A new
// state is seeded from the durable record, or from the default buffer
// and language when no record exists. The mutex is held across the
// seed lookup so back-to-back joins for the same id cannot create two
// states.
func (r *Registry) Ensure(ctx context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[sessionID]; ok {
		return nil
	}

	code := store.DefaultCode
	language := store.DefaultLanguage

	record, err := r.loader.Get(ctx, sessionID)

	switch {
	case err == nil:
		code = record.Code
		language = record.Language
	case errors.Is(err, store.ErrNotFound):
		// first join of an unknown session; start from defaults
	default:
		return fmt.Errorf("failed to seed session state: %w", err)
	}

	r.sessions[sessionID] = &activeSession{
		code:      code,
		language:  language,
		presences: make(map[string]Presence),
	}

	logger.Debug("live session state created", "session_id", sessionID)
	return nil
}

// assigns a random color and inserts a presence record for the
// connection. The session state must already exist (via Ensure).
func (r *Registry) AddPresence(sessionID, connectionID string) (Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Presence{}, false
	}

	presence := Presence{
		ID:    connectionID,
		Color: colorPalette[rand.IntN(len(colorPalette))],
	}
	session.presences[connectionID] = presence

	return presence, true
}

// removes a presence record. When the last presence is removed the
// entire live state is evicted, so a later join reseeds from the
// durable record. Returns the remaining presences and whether the
// state was evicted.
func (r *Registry) RemovePresence(sessionID, connectionID string) ([]Presence, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return nil, false
	}

	delete(session.presences, connectionID)

	if len(session.presences) == 0 {
		delete(r.sessions, sessionID)
		logger.Debug("live session state evicted", "session_id", sessionID)
		return []Presence{}, true
	}

	return presenceList(session), false
}

// overwrites the live buffer unconditionally. Last write wins: no
// merge, no version check.
func (r *Registry) SetCode(sessionID, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	session.code = code
	return true
}

// overwrites the live language tag unconditionally
func (r *Registry) SetLanguage(sessionID, language string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	session.language = language
	return true
}

// returns a copy of the live state for a session
func (r *Registry) Snapshot(sessionID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return Snapshot{}, false
	}

	return Snapshot{
		Code:      session.code,
		Language:  session.language,
		Presences: presenceList(session),
	}, true
}

// returns the current presence list for a session; empty when the
// session has no live state
func (r *Registry) Presences(sessionID string) []Presence {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return []Presence{}
	}

	return presenceList(session)
}

// returns the number of sessions with live state
func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// must be called with the registry mutex held
func presenceList(session *activeSession) []Presence {
	presences := make([]Presence, 0, len(session.presences))

	for _, presence := range session.presences {
		presences = append(presences, presence)
	}

	return presences
}
