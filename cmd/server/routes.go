package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/slyxzy/collab-code-editor/api/rest/health"
	"github.com/slyxzy/collab-code-editor/api/rest/sessions"
	"github.com/slyxzy/collab-code-editor/api/websocket"
)

// sets up all API routes and middleware
func RegisterRoutes(router *gin.Engine, server *Server) {
	router.Use(CORSMiddleware(server))

	api := router.Group("/api")
	health.RegisterRoutes(api)

	v1 := router.Group("/api/v1")

	{
		sessions.RegisterRoutes(v1, server.store, server.persister)
		websocket.RegisterRoutes(v1, server.hub)
	}
}

func CORSMiddleware(server *Server) gin.HandlerFunc {
	corsConfig := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(server.config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = server.config.AllowedOrigins
	} else if server.config.Environment != "production" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowCredentials = false
	}

	return cors.New(corsConfig)
}
