// Package main initializes and starts the TaskSync server, setting up
// configuration, logging, the database connection, repositories,
// services, and HTTP handlers.
package main

import (
	"cmp"
	"context"
	"fmt"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/TaskSync/internal/codec"
	"github.com/atinyakov/TaskSync/internal/config"
	"github.com/atinyakov/TaskSync/internal/db"
	"github.com/atinyakov/TaskSync/internal/kdf"
	"github.com/atinyakov/TaskSync/internal/logger"
	"github.com/atinyakov/TaskSync/internal/repository"
	"github.com/atinyakov/TaskSync/internal/server/handler/http"
	"github.com/atinyakov/TaskSync/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init("Info"); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	if options.Credential == "" {
		zapLogger.Fatal("sync credential is not set (SYNC_CREDENTIAL)")
	}
	if options.JWTSecret == "" {
		zapLogger.Fatal("token secret is not set (JWT_SECRET)")
	}

	// Initialize PostgreSQL connection and schema.
	postgresDB, err := db.InitPostgres(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}

	// Initialize repositories for authentication and synchronization.
	authRepo := repository.NewPostgresAuthRepository(postgresDB)
	replicaRepo := repository.NewPostgresReplicaRepository(postgresDB)

	// Load (or mint) the server's replica identity and derive its key.
	replicaID, salt, err := replicaRepo.Identity(context.Background())
	if err != nil {
		zapLogger.Fatal("cannot load replica identity", zap.Error(err))
	}
	key, err := kdf.Derive([]byte(options.Credential), salt)
	if err != nil {
		zapLogger.Fatal("cannot derive replica key", zap.Error(err))
	}
	cdc, err := codec.New(key)
	if err != nil {
		zapLogger.Fatal("cannot init codec", zap.Error(err))
	}

	// Optionally prune old tombstones in the background.
	if options.CompactionEnabled {
		db.StartTombstoneCompaction(context.Background(), postgresDB,
			options.CompactionInterval,
			options.CompactionRetention,
			zapLogger,
		)
	}

	// Initialize business-logic services.
	authService := service.NewAuthService(authRepo, []byte(options.JWTSecret), 24*time.Hour)
	syncService := service.NewSyncService(replicaRepo, cdc, replicaID, zapLogger)

	// Create HTTP handlers for auth and sync endpoints.
	authHandler := &http.AuthHandler{AuthService: authService}
	syncHandler := &http.SyncHandler{SyncService: syncService, Log: zapLogger, ReplicaSalt: salt}

	// Build the router with middleware and routes.
	router := http.NewRouter(authHandler, syncHandler, authService.Verify, zapLogger)

	zapLogger.Info("starting server",
		zap.String("addr", options.Port),
		zap.String("replica_id", replicaID),
	)
	if err := nethttp.ListenAndServe(options.Port, router); err != nil {
		zapLogger.Fatal("failed to start server", zap.Error(err))
	}
}
