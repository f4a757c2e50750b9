package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/slyxzy/collab-code-editor/internal/logger"
)

// Engine exports timestamped session snapshots to a blob store and
// prunes each session's namespace down to the retention cap. A nil
// blob store soft-disables the engine entirely.
type Engine struct {
	blobs       BlobStore
	maxRetained int
	now         func() time.Time
}

func NewEngine(blobs BlobStore, maxRetained int) *Engine {
	return &Engine{
		blobs:       blobs,
		maxRetained: maxRetained,
		now:         time.Now,
	}
}

// reports whether a blob store is configured
func (e *Engine) Enabled() bool {
	return e != nil && e.blobs != nil
}

// uploads a snapshot for the session and deletes the oldest snapshots
// beyond the retention cap. Every failure is logged and swallowed:
// backups never fail the write that triggered them.
func (e *Engine) Backup(ctx context.Context, sessionID string, payload SnapshotPayload) Result {
	if !e.Enabled() {
		return Result{Skipped: true}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		logger.ErrorErr(err, "failed to serialize backup payload", "session_id", sessionID)
		return Result{}
	}

	prefix := fmt.Sprintf("sessions/%s/", sessionID)
	key := fmt.Sprintf("%sbackup-%d.json", prefix, e.now().UnixMilli())

	if err := e.blobs.Put(ctx, key, body); err != nil {
		logger.ErrorErr(err, "failed to upload backup", "session_id", sessionID, "key", key)
		return Result{}
	}

	objects, err := e.blobs.List(ctx, prefix)
	if err != nil {
		logger.ErrorErr(err, "failed to list backups for rotation", "session_id", sessionID)
		return Result{Uploaded: key}
	}

	if len(objects) <= e.maxRetained {
		return Result{Uploaded: key}
	}

	// oldest first; delete everything beyond the retention cap
	sort.Slice(objects, func(i, j int) bool {
		return objects[i].LastModified.Before(objects[j].LastModified)
	})

	stale := objects[:len(objects)-e.maxRetained]
	keys := make([]string, 0, len(stale))

	for _, object := range stale {
		keys = append(keys, object.Key)
	}

	if err := e.blobs.BatchDelete(ctx, keys); err != nil {
		logger.ErrorErr(err, "failed to delete stale backups",
			"session_id", sessionID,
			"count", len(keys),
		)
		return Result{Uploaded: key}
	}

	logger.Debug("rotated session backups",
		"session_id", sessionID,
		"uploaded", key,
		"deleted", len(keys),
	)

	return Result{Uploaded: key, Deleted: len(keys)}
}
