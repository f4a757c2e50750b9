package websocket

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"os"
	"strings"

	"github.com/slyxzy/collab-code-editor/internal/errors"
	"github.com/slyxzy/collab-code-editor/internal/logger"
)

// validates the Origin header on upgrade requests. Development allows
// everything; production requires an ALLOWED_ORIGINS match.
func CheckOrigin(r *http.Request) bool {
	if os.Getenv("ENVIRONMENT") != "production" {
		return true
	}

	origin := r.Header.Get("Origin")
	if origin == "" {
		return false
	}

	allowed := os.Getenv("ALLOWED_ORIGINS")
	if allowed == "" {
		logger.Warn("ALLOWED_ORIGINS not set in production, rejecting websocket upgrade",
			"origin", origin,
		)
		return false
	}

	for _, candidate := range strings.Split(allowed, ",") {
		if strings.TrimSpace(candidate) == origin {
			return true
		}
	}

	return false
}

// returns a random 16-byte hex connection id
func GenerateClientID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// strips internal detail from error text before it reaches clients in
// production
func sanitizeErrorString(details string) string {
	if details == "" {
		return ""
	}
	if os.Getenv("ENVIRONMENT") != "production" {
		return details
	}
	return errors.SanitizeMessage(details)
}
