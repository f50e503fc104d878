// Package container wires the engine's dependencies together for the
// presentation layer.
package container

import (
	"github.com/burned13/wifiemergencia/internal/application/services"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/messaging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
)

// Container holds the engine's long-lived dependencies.
type Container struct {
	Logger      *logging.ChanneledLogger
	Cache       *manager.Manager
	DB          *database.DB
	Broadcaster *messaging.ProgressBroadcaster

	MapTileService     *services.MapTileService
	ConnectionService  *services.ConnectionService
	AutoConnectService *services.AutoConnectService
}

// Close releases the container's resources.
func (c *Container) Close() {
	if c.Cache != nil {
		c.Cache.Close()
	}
	if c.DB != nil {
		c.DB.Close()
	}
	if c.Logger != nil {
		c.Logger.Close()
	}
}
