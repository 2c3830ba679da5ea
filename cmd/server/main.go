package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"driftnote/internal/auth"
	"driftnote/internal/collab"
	"driftnote/internal/config"
	"driftnote/internal/handler"
	"driftnote/internal/middleware"
	"driftnote/internal/repository/postgres"
	"driftnote/internal/service/sync"
	"driftnote/internal/service/tasks"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}
	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.LogMaxFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
	)

	verifier, err := auth.NewHS256Verifier(cfg.AuthSecret, logger)
	if err != nil {
		log.Fatalf("Failed to create token verifier: %v", err)
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Apply embedded migrations before anything touches the tables.
	if err := postgres.Migrate(cfg.DatabaseURL, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(),
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)
	workspaceRepo := postgres.NewWorkspaceRepository(repoConfig)
	settingsRepo := postgres.NewSettingsRepository(repoConfig)
	snapshotRepo := postgres.NewSnapshotRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Create services
	syncService := sync.NewService(docRepo, workspaceRepo, settingsRepo, txManager, logger)
	taskService := tasks.NewService(docRepo, logger)
	registry := collab.NewRegistry(snapshotRepo, docRepo, collab.RegistryConfig{
		FlushInterval: cfg.RoomFlushInterval,
		GracePeriod:   cfg.RoomGracePeriod,
	}, logger)

	// Create handlers
	syncHandler := handler.NewSyncHandler(syncService, logger)
	workspaceHandler := handler.NewWorkspaceHandler(syncService, logger)
	documentHandler := handler.NewDocumentHandler(syncService, logger)
	tasksHandler := handler.NewTasksHandler(taskService, logger)
	roomHandler := handler.NewRoomHandler(registry, syncService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Sync routes
	mux.HandleFunc("GET /api/sync/pull", syncHandler.Pull)
	mux.HandleFunc("POST /api/sync/push", syncHandler.Push)

	// Workspace and document routes
	mux.HandleFunc("DELETE /api/workspaces/{id}", workspaceHandler.Delete)
	mux.HandleFunc("DELETE /api/documents/{id}/purge", documentHandler.Purge)

	// Task routes
	mux.HandleFunc("GET /api/tasks", tasksHandler.List)
	mux.HandleFunc("POST /api/documents/{id}/tasks/toggle", tasksHandler.Toggle)

	// Collaboration room routes
	mux.HandleFunc("GET /api/documents/{id}/room", roomHandler.Summary)
	mux.HandleFunc("POST /api/documents/{id}/room", roomHandler.Action)
	mux.HandleFunc("GET /api/documents/{id}/room/ws", roomHandler.Connect)

	// Build middleware chain. Order: CORS -> Recovery -> Auth -> Routes;
	// CORS sits outermost so OPTIONS pre-flights skip auth. Health is
	// mounted beside the authenticated API so probes need no token.
	rootMux := http.NewServeMux()
	rootMux.HandleFunc("GET /health", handler.Health)
	rootMux.Handle("/api/", middleware.Auth(verifier)(mux))

	var root http.Handler = rootMux
	root = middleware.Recovery(logger)(root)
	root = cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	}).Handler(root)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     root,
		ReadTimeout: 15 * time.Second,
		// Write timeout disabled: websocket connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "port", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	// Flush every live room before the process goes away, then stop the
	// HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := registry.FlushAll(shutdownCtx); err != nil {
		logger.Error("room flush on shutdown failed", "error", err)
	}
	registry.Close()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}
	logger.Info("server stopped")
}
