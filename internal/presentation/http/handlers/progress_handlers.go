package handlers

import (
	"net/http"

	"github.com/burned13/wifiemergencia/internal/infrastructure/messaging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var progressUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // local engine, origins already constrained by CORS on the API
	},
}

// ProgressHandlers serves the live download-progress websocket.
type ProgressHandlers struct {
	broadcaster *messaging.ProgressBroadcaster
	logger      *logging.ChanneledLogger
}

// NewProgressHandlers creates progress handlers.
func NewProgressHandlers(broadcaster *messaging.ProgressBroadcaster, logger *logging.ChanneledLogger) *ProgressHandlers {
	return &ProgressHandlers{broadcaster: broadcaster, logger: logger}
}

// Stream handles GET /ws/map/progress
func (h *ProgressHandlers) Stream(c *gin.Context) {
	conn, err := progressUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.logger != nil {
			h.logger.Tiles().Error("Websocket upgrade failed", "error", err.Error())
		}
		return
	}

	client := messaging.NewProgressClient(conn)
	h.broadcaster.Register(client)

	go func() {
		defer conn.Close()
		for message := range client.Send {
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		}
	}()

	// The reader only exists to notice the peer going away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				h.broadcaster.Unregister(client)
				return
			}
		}
	}()
}
