package registry

import (
	"context"
	"sync"

	"github.com/slyxzy/collab-code-editor/internal/store"
)

// display colors assigned to joining participants, picked uniformly
// at random; collisions within a session are allowed
var colorPalette = []string{
	"#FF6B6B", "#4ECDC4", "#45B7D1", "#FFA07A",
	"#98D8C8", "#F7DC6F", "#BB8FCE", "#85C1E2",
}

// Loader is the read side of the durable store used to seed live
// session state on first join
type Loader interface {
	Get(ctx context.Context, id string) (*store.Session, error)
}

// represents one connected participant within a session. Not
// persisted; the id is the connection id and is not stable across
// reconnects.
type Presence struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// the live, in-memory state of one session. Code and language are
// authoritative for active collaboration and may be ahead of the
// durable copy.
type activeSession struct {
	code      string
	language  string
	presences map[string]Presence
}

// a read-only view of live session state, used to initialize a newly
// joined connection
type Snapshot struct {
	Code      string
	Language  string
	Presences []Presence
}

// Registry is the process-wide table of live sessions and their
// participants. It owns all live state exclusively; callers mutate it
// only through these methods. All methods are safe for concurrent
// use; creation of a session's state is serialized under the registry
// mutex so concurrent joins cannot race-create two states for one id.
type Registry struct {
	mu       sync.Mutex
	loader   Loader
	sessions map[string]*activeSession
}
