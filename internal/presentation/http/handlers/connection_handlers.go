package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/burned13/wifiemergencia/internal/application/services"
	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/pkg/config"
	"github.com/gin-gonic/gin"
)

// ConnectionHandlers serves session, diagnostics and reporting endpoints.
type ConnectionHandlers struct {
	connectionService *services.ConnectionService
	logger            *logging.ChanneledLogger
}

// NewConnectionHandlers creates connection handlers.
func NewConnectionHandlers(connectionService *services.ConnectionService, logger *logging.ChanneledLogger) *ConnectionHandlers {
	return &ConnectionHandlers{connectionService: connectionService, logger: logger}
}

// GetWifiStatus handles GET /api/v1/wifi/status
func (h *ConnectionHandlers) GetWifiStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.connectionService.GetWifiStatus(c.Request.Context()))
}

// GetReachability handles GET /api/v1/wifi/reachability
func (h *ConnectionHandlers) GetReachability(c *gin.Context) {
	result := h.connectionService.TestInternetReachability(c.Request.Context(), config.ReachabilityProbeTimeout)
	c.JSON(http.StatusOK, result)
}

// GetConnectionLimit handles GET /api/v1/networks/:id/limit
func (h *ConnectionHandlers) GetConnectionLimit(c *gin.Context) {
	limit, err := h.connectionService.CheckConnectionLimit(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, limit)
}

// GetConnections handles GET /api/v1/connections?userId=&limit=
func (h *ConnectionHandlers) GetConnections(c *gin.Context) {
	userID := c.Query("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	sessions, err := h.connectionService.GetConnectionHistory(c.Request.Context(), userID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": sessions})
}

type startConnectionRequest struct {
	UserID    string  `json:"userId" binding:"required"`
	NetworkID string  `json:"networkId" binding:"required"`
	DeviceID  string  `json:"deviceId" binding:"required"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// StartConnection handles POST /api/v1/connections
func (h *ConnectionHandlers) StartConnection(c *gin.Context) {
	var req startConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	limit, err := h.connectionService.CheckConnectionLimit(ctx, req.NetworkID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !limit.CanConnect {
		h.connectionService.LogAccessEvent(ctx, req.NetworkID, req.UserID, network.AccessLimitExceeded, req.Latitude, req.Longitude, "")
		c.JSON(http.StatusConflict, gin.H{"error": "network at capacity", "limit": limit})
		return
	}

	session, err := h.connectionService.StartConnection(ctx, req.UserID, req.NetworkID, req.DeviceID, req.Latitude, req.Longitude)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	h.connectionService.EnforceSessionTimeout(session.ID, config.SessionTimeoutMinutes)

	c.JSON(http.StatusCreated, session)
}

type endConnectionRequest struct {
	DurationSeconds int64 `json:"durationSeconds"`
}

// EndConnection handles POST /api/v1/connections/:id/end
func (h *ConnectionHandlers) EndConnection(c *gin.Context) {
	var req endConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if err := h.connectionService.EndConnection(c.Request.Context(), c.Param("id"), req.DurationSeconds); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended", "endedAt": time.Now().UTC()})
}

// GetOwnerFailureSummary handles GET /api/v1/owners/:id/failure-summary
func (h *ConnectionHandlers) GetOwnerFailureSummary(c *gin.Context) {
	items, err := h.connectionService.OwnerFailureSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"networks": items})
}
