// Package geocoding wraps the Nominatim HTTP API for reverse and forward
// lookups. Nominatim's usage policy requires an identifying User-Agent on
// every request.
package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// Place is the result of a reverse lookup.
type Place struct {
	City    string
	Country string
}

// Client is the geocoding contract the map services depend on.
type Client interface {
	Reverse(ctx context.Context, lat, lon float64) (*Place, error)
	Search(ctx context.Context, query string) (*geo.BoundingBox, error)
}

// NominatimClient talks to a Nominatim instance.
type NominatimClient struct {
	baseURL string
	client  *http.Client
	logger  *logging.ChanneledLogger
}

// NewNominatimClient creates a client against the configured Nominatim base URL.
func NewNominatimClient(logger *logging.ChanneledLogger) *NominatimClient {
	return &NominatimClient{
		baseURL: config.NominatimBaseURL,
		client:  &http.Client{Timeout: config.GeocodeTimeout},
		logger:  logger,
	}
}

// NewNominatimClientWithBaseURL creates a client against an explicit base URL.
func NewNominatimClientWithBaseURL(baseURL string, logger *logging.ChanneledLogger) *NominatimClient {
	c := NewNominatimClient(logger)
	c.baseURL = baseURL
	return c
}

// Reverse resolves the locality containing a coordinate. Nominatim labels the
// locality differently by settlement size, so city, town and village are all
// acceptable.
func (c *NominatimClient) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s",
		c.baseURL,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
	)

	var payload struct {
		Address struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	city := payload.Address.City
	if city == "" {
		city = payload.Address.Town
	}
	if city == "" {
		city = payload.Address.Village
	}
	if city == "" {
		return nil, fmt.Errorf("geocoding: no locality at %f,%f", lat, lon)
	}

	return &Place{City: city, Country: payload.Address.Country}, nil
}

// Search forward-geocodes a free-text query and returns the first hit's
// bounding box. Nominatim orders the box [south, north, west, east].
func (c *NominatimClient) Search(ctx context.Context, query string) (*geo.BoundingBox, error) {
	endpoint := fmt.Sprintf("%s/search?format=json&limit=1&q=%s", c.baseURL, url.QueryEscape(query))

	var payload []struct {
		BoundingBox []string `json:"boundingbox"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 || len(payload[0].BoundingBox) != 4 {
		return nil, fmt.Errorf("geocoding: no results for %q", query)
	}

	var edges [4]float64
	for i, raw := range payload[0].BoundingBox {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("geocoding: malformed bounding box for %q: %w", query, err)
		}
		edges[i] = v
	}

	return &geo.BoundingBox{South: edges[0], North: edges[1], West: edges[2], East: edges[3]}, nil
}

func (c *NominatimClient) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", config.HTTPUserAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("geocoding: %s returned status %d", endpoint, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
