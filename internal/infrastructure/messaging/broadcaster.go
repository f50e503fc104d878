// Package messaging fans out live download progress to websocket clients.
package messaging

import (
	"encoding/json"
	"sync"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/gorilla/websocket"
)

// ProgressClient represents a single connected progress subscriber.
type ProgressClient struct {
	Conn *websocket.Conn
	Send chan []byte
}

// NewProgressClient wraps a websocket connection with a buffered send queue.
func NewProgressClient(conn *websocket.Conn) *ProgressClient {
	return &ProgressClient{Conn: conn, Send: make(chan []byte, 16)}
}

// ProgressBroadcaster manages subscribers and pushes each published
// DownloadStatus to all of them. Slow clients drop frames rather than block
// the tile pipeline.
type ProgressBroadcaster struct {
	clients    map[*ProgressClient]bool
	register   chan *ProgressClient
	unregister chan *ProgressClient
	publish    chan network.DownloadStatus
	logger     *logging.ChanneledLogger
	mu         sync.RWMutex
}

// NewProgressBroadcaster creates a new broadcaster instance.
func NewProgressBroadcaster(logger *logging.ChanneledLogger) *ProgressBroadcaster {
	return &ProgressBroadcaster{
		clients:    make(map[*ProgressClient]bool),
		register:   make(chan *ProgressClient),
		unregister: make(chan *ProgressClient),
		publish:    make(chan network.DownloadStatus, 64),
		logger:     logger,
	}
}

// Run starts the broadcaster's main loop. This should be run as a goroutine.
func (b *ProgressBroadcaster) Run() {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			b.clients[client] = true
			b.mu.Unlock()
			if b.logger != nil {
				b.logger.Tiles().Debug("Progress client registered")
			}

		case client := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client.Send)
			}
			b.mu.Unlock()
			if b.logger != nil {
				b.logger.Tiles().Debug("Progress client unregistered")
			}

		case status := <-b.publish:
			b.fanOut(status)
		}
	}
}

// Register queues a client for registration.
func (b *ProgressBroadcaster) Register(client *ProgressClient) {
	b.register <- client
}

// Unregister queues a client for unregistration.
func (b *ProgressBroadcaster) Unregister(client *ProgressClient) {
	b.unregister <- client
}

// Publish queues a status frame for fan-out. Never blocks the caller; when
// the queue is full the frame is dropped, the next one carries newer totals
// anyway.
func (b *ProgressBroadcaster) Publish(status network.DownloadStatus) {
	select {
	case b.publish <- status:
	default:
	}
}

func (b *ProgressBroadcaster) fanOut(status network.DownloadStatus) {
	message, err := json.Marshal(status)
	if err != nil {
		if b.logger != nil {
			b.logger.Tiles().Error("Progress frame encode failed", "error", err.Error())
		}
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.clients {
		select {
		case client.Send <- message:
		default:
		}
	}
}
