package errors

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// maps an error message to a generic client-safe message. Used in
// production so that driver internals and connection strings never
// reach clients.
func SanitizeMessage(errMsg string) string {
	lowered := strings.ToLower(errMsg)

	if strings.Contains(lowered, "timeout") || strings.Contains(lowered, "deadline") {
		return "request timed out"
	}

	if strings.Contains(lowered, "not found") || strings.Contains(lowered, "no rows") {
		return "resource not found"
	}

	if strings.Contains(lowered, "database") || strings.Contains(lowered, "sql") ||
		strings.Contains(lowered, "postgres") || strings.Contains(lowered, "pgx") {
		return "database operation failed"
	}

	if strings.Contains(lowered, "connection") || strings.Contains(lowered, "network") ||
		strings.Contains(lowered, "dial") {
		return "connection error occurred"
	}

	if strings.Contains(lowered, "validation") || strings.Contains(lowered, "binding") ||
		strings.Contains(lowered, "invalid") || strings.Contains(lowered, "required") {
		return "validation failed"
	}

	return "an error occurred"
}

// reports whether an error is a database-level failure (as opposed to
// a not-found or cancellation)
func IsDatabaseError(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return true
	}

	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	lowered := strings.ToLower(err.Error())
	return strings.Contains(lowered, "database") || strings.Contains(lowered, "sql") ||
		strings.Contains(lowered, "postgres") || strings.Contains(lowered, "pgx")
}
