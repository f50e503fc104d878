// Package routes provides HTTP route configuration for the presentation layer.
package routes

import (
	"net/http"

	"github.com/burned13/wifiemergencia/internal/application/container"
	"github.com/burned13/wifiemergencia/internal/presentation/http/handlers"
	"github.com/burned13/wifiemergencia/internal/presentation/http/middleware"
	"github.com/gin-gonic/gin"
)

// SetupRoutes configures all HTTP routes and middleware with dependency injection.
func SetupRoutes(c *container.Container) *gin.Engine {
	r := gin.Default()

	r.Use(middleware.CORSMiddleware())

	mapHandlers := handlers.NewMapHandlers(c.MapTileService, c.Logger)
	connectionHandlers := handlers.NewConnectionHandlers(c.ConnectionService, c.Logger)
	progressHandlers := handlers.NewProgressHandlers(c.Broadcaster, c.Logger)

	api := r.Group("/api/v1")
	{
		api.GET("/map/status", mapHandlers.GetStatus)
		api.GET("/map/region", mapHandlers.GetRegion)
		api.GET("/map/tiles/:z/:x/:y", mapHandlers.GetTile)
		api.POST("/map/prepare", mapHandlers.Prepare)
		api.DELETE("/map/tiles", mapHandlers.ClearTiles)

		api.GET("/wifi/status", connectionHandlers.GetWifiStatus)
		api.GET("/wifi/reachability", connectionHandlers.GetReachability)

		api.GET("/networks/:id/limit", connectionHandlers.GetConnectionLimit)

		api.GET("/connections", connectionHandlers.GetConnections)
		api.POST("/connections", connectionHandlers.StartConnection)
		api.POST("/connections/:id/end", connectionHandlers.EndConnection)

		api.GET("/owners/:id/failure-summary", connectionHandlers.GetOwnerFailureSummary)
	}

	r.GET("/ws/map/progress", progressHandlers.Stream)

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}
