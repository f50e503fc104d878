// Package tiles fetches raster map tiles over HTTP from slippy-map servers.
package tiles

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// URL builds the standard slippy-map tile path under a base URL.
func URL(baseURL string, key geo.TileKey) string {
	return fmt.Sprintf("%s/%d/%d/%d.png", baseURL, key.Zoom, key.X, key.Y)
}

// Client downloads tile payloads with a shared pooled HTTP client.
type Client struct {
	http   *http.Client
	logger *logging.ChanneledLogger
}

// NewClient creates a tile client with the configured fetch timeout.
func NewClient(logger *logging.ChanneledLogger) *Client {
	return &Client{
		http:   &http.Client{Timeout: config.TileFetchTimeout},
		logger: logger,
	}
}

// Fetch downloads one tile and returns its raw bytes. Non-200 responses are
// errors; callers decide whether the payload is worth keeping.
func (c *Client) Fetch(ctx context.Context, tileURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", config.HTTPUserAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tiles: %s returned status %d", tileURL, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ProbeMirror checks whether a mirror answers quickly enough to be worth
// placing ahead of the canonical servers. It fetches the world tile with a
// short deadline.
func (c *Client) ProbeMirror(ctx context.Context, baseURL string) bool {
	probeCtx, cancel := context.WithTimeout(ctx, config.TileMirrorProbeTimeout)
	defer cancel()

	payload, err := c.Fetch(probeCtx, URL(baseURL, geo.TileKey{Zoom: 0, X: 0, Y: 0}))
	if err != nil {
		if c.logger != nil {
			c.logger.Tiles().Debug("Mirror probe failed", "baseUrl", baseURL, "error", err.Error())
		}
		return false
	}
	return len(payload) > 0
}
