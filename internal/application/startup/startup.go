// Package startup prepares the engine: storage, services, background loops
// and the HTTP server.
package startup

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/burned13/wifiemergencia/internal/application/container"
	"github.com/burned13/wifiemergencia/internal/application/services"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/stores"
	schema "github.com/burned13/wifiemergencia/internal/infrastructure/database"
	"github.com/burned13/wifiemergencia/internal/infrastructure/geocoding"
	"github.com/burned13/wifiemergencia/internal/infrastructure/location"
	"github.com/burned13/wifiemergencia/internal/infrastructure/messaging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
	persistence "github.com/burned13/wifiemergencia/internal/infrastructure/persistence/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/burned13/wifiemergencia/internal/infrastructure/tiles"
	"github.com/burned13/wifiemergencia/internal/presentation/http/server"
	"github.com/burned13/wifiemergencia/pkg/config"
	"github.com/gin-gonic/gin"
)

// Initialize performs the complete startup sequence and blocks until a
// shutdown signal arrives.
func Initialize() error {
	if os.Getenv("GIN_MODE") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	start := time.Now().UTC()

	logger, err := logging.NewChanneledLogger(logging.DefaultLoggerConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger.Startup().Info("Channeled logging initialized")

	ctx, cancelBackgroundTasks := context.WithCancel(context.Background())
	defer cancelBackgroundTasks()

	// Local persistent cache
	store, err := stores.NewSQLiteKVStore(config.CachePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open cache at %s: %w", config.CachePath, err)
	}
	cache := manager.NewManager(store, logger)
	logger.Startup().Info("Persistent cache ready", "path", config.CachePath)

	// Remote record store
	db, err := database.NewConnectionWithLogger(config.DatabaseDriver, config.DatabaseURL, logger)
	if err != nil {
		return fmt.Errorf("failed to connect to record store: %w", err)
	}
	if err := schema.NewTableCreator().CreateSchema(db.DB); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	logger.Startup().Info("Record store ready", "driver", config.DatabaseDriver)

	// Repositories
	connectionRepo := persistence.NewSQLConnectionRepository(db)
	networkRepo := persistence.NewSQLNetworkRepository(db)
	accessLogRepo := persistence.NewSQLAccessLogRepository(db)
	errorReportRepo := persistence.NewSQLErrorReportRepository(db)

	// Live progress fan-out
	broadcaster := messaging.NewProgressBroadcaster(logger)
	go broadcaster.Run()

	// Platform interfaces. Without a wired radio the engine still serves
	// maps and diagnostics, everything else degrades per policy.
	var radioCap radio.Capability = radio.Unavailable{}
	var locator location.Provider = location.NewIPLocator(logger)

	// Services
	mapService := services.NewMapTileService(cache, tiles.NewClient(logger), geocoding.NewNominatimClient(logger), broadcaster, logger)
	connectionService := services.NewConnectionService(connectionRepo, networkRepo, accessLogRepo, errorReportRepo, cache, radioCap, logger)
	autoConnectService := services.NewAutoConnectService(connectionService, cache, radioCap, locator, config.DeviceUserID, config.DeviceID, logger)
	logger.Startup().Info("Application services initialized")

	go func() {
		if err := autoConnectService.Run(ctx); err != nil && ctx.Err() == nil {
			logger.System().Error("Auto-connect loop exited", "error", err.Error())
		}
	}()

	appContainer := &container.Container{
		Logger:             logger,
		Cache:              cache,
		DB:                 db,
		Broadcaster:        broadcaster,
		MapTileService:     mapService,
		ConnectionService:  connectionService,
		AutoConnectService: autoConnectService,
	}

	httpServer := server.New(config.Port, appContainer)
	go func() {
		logger.System().Info("Starting HTTP server", "address", ":"+config.Port)
		if err := httpServer.Start(); err != nil {
			logger.System().Error("HTTP server failed", "error", err.Error())
		}
	}()

	logger.Startup().Info("Engine startup complete", "totalDuration", time.Since(start), "port", config.Port)

	gracefulShutdown := make(chan os.Signal, 1)
	signal.Notify(gracefulShutdown, syscall.SIGINT, syscall.SIGTERM)
	<-gracefulShutdown

	logger.Shutdown().Info("Shutdown signal received, starting graceful shutdown...")
	shutdownStart := time.Now()

	cancelBackgroundTasks()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Shutdown().Error("Error during server shutdown", "error", err.Error())
	}

	logger.Shutdown().Info("Engine shutdown complete",
		"totalUptime", time.Since(start),
		"shutdownDuration", time.Since(shutdownStart))
	appContainer.Close()

	return nil
}
