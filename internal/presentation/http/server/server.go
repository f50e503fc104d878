// Package server wraps the HTTP server lifecycle.
package server

import (
	"context"
	"net/http"

	"github.com/burned13/wifiemergencia/internal/application/container"
	"github.com/burned13/wifiemergencia/internal/presentation/http/routes"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// Server is the engine's HTTP server.
type Server struct {
	httpServer *http.Server
}

// New creates a server bound to the given port with all routes configured.
func New(port string, c *container.Container) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         ":" + port,
			Handler:      routes.SetupRoutes(c),
			ReadTimeout:  config.ServerReadTimeout,
			WriteTimeout: config.ServerWriteTimeout,
			IdleTimeout:  config.ServerIdleTimeout,
		},
	}
}

// Start blocks serving requests until the server is stopped.
func (s *Server) Start() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
