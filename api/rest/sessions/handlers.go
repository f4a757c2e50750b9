package sessions

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apierrors "github.com/slyxzy/collab-code-editor/internal/errors"
	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

const (
	defaultListLimit    = 20
	maxListLimit        = 100
	defaultActiveWindow = time.Hour
)

// returns the most recently updated sessions, without code bodies
func ListSessionsHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := defaultListLimit

		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 {
				apierrors.BadRequest(c, "limit must be a positive integer", err)
				return
			}
			if parsed > maxListLimit {
				parsed = maxListLimit
			}
			limit = parsed
		}

		sessions, err := st.ListRecent(c.Request.Context(), limit)
		if err != nil {
			apierrors.InternalError(c, "failed to list sessions", err)
			return
		}

		responses := make([]SessionResponse, 0, len(sessions))
		for _, s := range sessions {
			responses = append(responses, toSessionResponse(s))
		}

		c.JSON(http.StatusOK, ListSessionsResponse{
			Sessions: responses,
			Count:    len(responses),
		})
	}
}

// returns a single session including its code
func GetSessionHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		session, err := st.Get(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apierrors.SessionNotFound(c)
				return
			}
			apierrors.InternalError(c, "failed to load session", err)
			return
		}

		c.JSON(http.StatusOK, toSessionResponse(session))
	}
}

// creates or updates a session. The save is synchronous so the caller
// sees the stored row; the backup runs on the persistence pipeline.
func SaveSessionHandler(st store.Store, persister *persist.Persister) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateSessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.ValidationError(c, err)
			return
		}

		if req.Name == "" {
			req.Name = "Untitled"
		}
		if req.Code == "" {
			req.Code = store.DefaultCode
		}
		if req.Language == "" {
			req.Language = store.DefaultLanguage
		}

		session, err := st.Save(c.Request.Context(), req.ID, req.Name, req.Code, req.Language)
		if err != nil {
			apierrors.InternalError(c, "failed to save session", err)
			return
		}

		persister.EnqueueBackup(session)

		c.JSON(http.StatusCreated, toSessionResponse(session))
	}
}

// deletes a session row. Live state in the registry is untouched; it
// will be reseeded from defaults on the next cold join.
func DeleteSessionHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		deleted, err := st.Delete(c.Request.Context(), id)
		if err != nil {
			apierrors.InternalError(c, "failed to delete session", err)
			return
		}

		if !deleted {
			apierrors.SessionNotFound(c)
			return
		}

		c.JSON(http.StatusOK, DeleteSessionResponse{
			Message: "session deleted",
			ID:      id,
		})
	}
}

// returns aggregate activity counts for a session
func SessionStatsHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")

		stats, err := st.Stats(c.Request.Context(), id)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				apierrors.SessionNotFound(c)
				return
			}
			apierrors.InternalError(c, "failed to load session stats", err)
			return
		}

		c.JSON(http.StatusOK, stats)
	}
}

// returns the sessions with the most activity within the window
func ActiveSessionsHandler(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		window := defaultActiveWindow

		if raw := c.Query("window"); raw != "" {
			parsed, err := time.ParseDuration(raw)
			if err != nil || parsed <= 0 {
				apierrors.BadRequest(c, "window must be a positive duration", err)
				return
			}
			window = parsed
		}

		sessions, err := st.MostActive(c.Request.Context(), window, 10)
		if err != nil {
			apierrors.InternalError(c, "failed to load active sessions", err)
			return
		}

		c.JSON(http.StatusOK, ActiveSessionsResponse{
			Sessions: sessions,
			Window:   window.String(),
		})
	}
}
