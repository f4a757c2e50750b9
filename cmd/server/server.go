package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slyxzy/collab-code-editor/internal/backup"
	"github.com/slyxzy/collab-code-editor/internal/config"
	"github.com/slyxzy/collab-code-editor/internal/logger"
	"github.com/slyxzy/collab-code-editor/internal/persist"
	"github.com/slyxzy/collab-code-editor/internal/registry"
	"github.com/slyxzy/collab-code-editor/internal/store"
	ws "github.com/slyxzy/collab-code-editor/internal/websocket"
)

// creates and configures a new server instance with all dependencies
func NewServer(cfg *config.Config) (*Server, error) {
	ctx := context.Background()

	var db *pgxpool.Pool
	var st store.Store

	if cfg.DatabaseURL != "" {
		pool, err := newDatabasePool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}

		pgStore := store.NewPostgresStore(pool)
		if err := pgStore.Bootstrap(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to bootstrap database schema: %w", err)
		}

		db = pool
		st = pgStore
	} else {
		// without DATABASE_URL sessions live only as long as the process
		logger.Warn("DATABASE_URL not set, using in-memory session store")
		st = store.NewMemoryStore()
	}

	var backupEngine *backup.Engine
	if cfg.Backup.Configured() {
		blobs, err := backup.NewS3BlobStore(cfg.Backup)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return nil, fmt.Errorf("failed to initialize s3 backup store: %w", err)
		}

		backupEngine = backup.NewEngine(blobs, cfg.Backup.MaxBackups)

		logger.Info("s3 backups enabled",
			"bucket", cfg.Backup.Bucket,
			"max_backups", cfg.Backup.MaxBackups,
		)
	} else {
		logger.Info("s3 backups disabled, aws credentials not configured")
	}

	persister := persist.NewPersister(st, backupEngine)
	reg := registry.New(st)

	hub := ws.NewHub()
	hub.RegisterHandler(ws.TypeJoinSession, ws.JoinSessionHandler(reg, persister))
	hub.RegisterHandler(ws.TypeCodeChange, ws.CodeChangeHandler(reg, persister))
	hub.RegisterHandler(ws.TypeLanguageChange, ws.LanguageChangeHandler(reg, persister))
	hub.RegisterHandler(ws.TypeCursorMove, ws.CursorMoveHandler())
	hub.RegisterHandler(ws.TypePing, ws.PingHandler())
	hub.OnClientDisconnect(ws.DisconnectFunc(hub, reg, persister))

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	server := &Server{
		db:        db,
		config:    cfg,
		store:     st,
		registry:  reg,
		persister: persister,
		hub:       hub,
		router:    router,
	}

	RegisterRoutes(router, server)

	return server, nil
}

func newDatabasePool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 5
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	// simple protocol keeps us compatible with transaction-mode
	// poolers like PgBouncer, which reject prepared statements
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	db, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
