package main

import (
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slyxzy/collab-code-editor/internal/config"
	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/registry"
	"github.com/slyxzy/collab-code-editor/internal/store"
	ws "github.com/slyxzy/collab-code-editor/internal/websocket"
)

// holds all dependencies and state for the API server
type Server struct {
	db        *pgxpool.Pool
	config    *config.Config
	store     store.Store
	registry  *registry.Registry
	persister *persist.Persister
	hub       *ws.Hub
	router    *gin.Engine
}
