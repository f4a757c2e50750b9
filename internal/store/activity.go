package store

import (
	"context"

	"github.com/slyxzy/collab-code-editor/internal/logger"
)

// appends an activity entry, converting any failure into a logged
// soft success. Activity logging is best-effort telemetry and must
// never fail the enclosing operation.
func SoftAppendActivity(ctx context.Context, s Store, entry *ActivityLogEntry) {
	if _, err := s.AppendActivity(ctx, entry); err != nil {
		logger.Warn("failed to append activity log entry",
			"session_id", entry.SessionID,
			"user_id", entry.UserID,
			"action", entry.Action,
			"error", err,
		)
	}
}
