// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stockpilot/replenisher/internal/api"
	"github.com/stockpilot/replenisher/internal/cache"
	"github.com/stockpilot/replenisher/internal/config"
	"github.com/stockpilot/replenisher/internal/cycle"
	"github.com/stockpilot/replenisher/internal/journal"
	"github.com/stockpilot/replenisher/internal/journal/postgres"
	"github.com/stockpilot/replenisher/internal/orders"
	"github.com/stockpilot/replenisher/internal/service"
	"github.com/stockpilot/replenisher/internal/storage"
	"github.com/stockpilot/replenisher/internal/supplier"
	"github.com/stockpilot/replenisher/pkg/logger"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	if cfg.Server.Mode == "debug" {
		logger.SetLevel("debug")
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize the order journal
	var jnl journal.Journal = journal.NewMemory()
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to connect to journal database")
		}
		defer db.Close()

		pgJournal := postgres.NewJournal(db)
		if err := pgJournal.Init(context.Background()); err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to initialize journal schema")
		}
		jnl = pgJournal
	}

	statusCache, err := cache.NewStatusCache(cfg.Cache)
	if err != nil {
		logger.Log.Warn().Err(err).Msg("Status cache unavailable, continuing without it")
		statusCache = cache.NewNoopStatusCache()
	}

	// Initialize the engine
	coord := orders.NewCoordinator(supplier.NewClient(cfg.Supplier), jnl, statusCache, cfg.Cycle)
	runner := cycle.NewRunner(cfg.Cycle, coord, jnl)
	if cfg.Archive.Enabled {
		store, err := storage.NewMinioClient(cfg.Archive)
		if err != nil {
			logger.Log.Warn().Err(err).Msg("Report archive unavailable, continuing without it")
		} else {
			runner = runner.WithArchive(store)
		}
	}
	svc := service.NewReplenishmentService(runner, coord, jnl)

	// Initialize HTTP server
	router := api.NewRouter(svc, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Start server in a goroutine
	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	logger.Log.Info().Msg("Server exiting")
}
