// Package handlers implements the HTTP endpoints of the engine API.
package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/burned13/wifiemergencia/internal/application/services"
	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
)

// MapHandlers serves the offline map endpoints.
type MapHandlers struct {
	mapService *services.MapTileService
	logger     *logging.ChanneledLogger
}

// NewMapHandlers creates map handlers.
func NewMapHandlers(mapService *services.MapTileService, logger *logging.ChanneledLogger) *MapHandlers {
	return &MapHandlers{mapService: mapService, logger: logger}
}

// GetStatus handles GET /api/v1/map/status
func (h *MapHandlers) GetStatus(c *gin.Context) {
	status, ok := h.mapService.DownloadStatus()
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"known":  ok,
		"ready":  h.mapService.TilesReady(),
	})
}

// GetRegion handles GET /api/v1/map/region
func (h *MapHandlers) GetRegion(c *gin.Context) {
	region := h.mapService.Region()
	if region == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no offline region prepared"})
		return
	}
	c.JSON(http.StatusOK, region)
}

// GetTile handles GET /api/v1/map/tiles/:z/:x/:y
func (h *MapHandlers) GetTile(c *gin.Context) {
	zoom, errZ := strconv.Atoi(c.Param("z"))
	x, errX := strconv.Atoi(c.Param("x"))
	y, errY := strconv.Atoi(c.Param("y"))
	if errZ != nil || errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tile coordinates must be integers"})
		return
	}

	dataURI, ok := h.mapService.CachedTile(geo.TileKey{Zoom: zoom, X: x, Y: y})
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "tile not cached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"dataUri": dataURI})
}

type prepareRequest struct {
	Center struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
		Accuracy  float64 `json:"accuracy"`
	} `json:"center"`
	Zooms []int            `json:"zooms"`
	Force bool             `json:"force"`
	BBox  *geo.BoundingBox `json:"bbox,omitempty"`
}

// Prepare handles POST /api/v1/map/prepare
func (h *MapHandlers) Prepare(c *gin.Context) {
	var req prepareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := geo.ValidateCoords(req.Center.Latitude, req.Center.Longitude); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Zooms) == 0 {
		req.Zooms = []int{14, 15, 16}
	}

	center := geo.Coordinate{Lat: req.Center.Latitude, Lon: req.Center.Longitude, Accuracy: req.Center.Accuracy}
	opts := services.PrepareOptions{Force: req.Force, BBox: req.BBox}

	go func() {
		// Downloads outlive the request; progress flows through the
		// status endpoint and the websocket.
		if _, err := h.mapService.PrepareOfflineMap(context.Background(), center, req.Zooms, opts); err != nil {
			if h.logger != nil {
				h.logger.Tiles().Info("Map preparation did not run", "reason", err.Error())
			}
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

// ClearTiles handles DELETE /api/v1/map/tiles
func (h *MapHandlers) ClearTiles(c *gin.Context) {
	h.mapService.ClearOfflineMap()
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}
