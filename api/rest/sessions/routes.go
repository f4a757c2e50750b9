package sessions

import (
	"github.com/gin-gonic/gin"

	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/store"
)

func RegisterRoutes(router *gin.RouterGroup, st store.Store, persister *persist.Persister) {
	router.GET("/sessions", ListSessionsHandler(st))
	router.POST("/sessions", SaveSessionHandler(st, persister))
	router.GET("/sessions/:id", GetSessionHandler(st))
	router.DELETE("/sessions/:id", DeleteSessionHandler(st))
	router.GET("/sessions/:id/stats", SessionStatsHandler(st))
	router.GET("/analytics/active", ActiveSessionsHandler(st))
}
