package sessions

import (
	"time"

	"github.com/slyxzy/collab-code-editor/internal/store"
)

// describes a session to create or update
type CreateSessionRequest struct {
	ID       string `json:"id" binding:"required,max=128"`
	Name     string `json:"name" binding:"max=255"`
	Code     string `json:"code"`
	Language string `json:"language" binding:"max=64"`
}

type SessionResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code,omitempty"`
	Language  string    `json:"language"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ListSessionsResponse struct {
	Sessions []SessionResponse `json:"sessions"`
	Count    int               `json:"count"`
}

type DeleteSessionResponse struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

type ActiveSessionsResponse struct {
	Sessions []*store.ActiveSessionSummary `json:"sessions"`
	Window   string                        `json:"window"`
}

func toSessionResponse(s *store.Session) SessionResponse {
	return SessionResponse{
		ID:        s.ID,
		Name:      s.Name,
		Code:      s.Code,
		Language:  s.Language,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}
