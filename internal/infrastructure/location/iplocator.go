package location

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// Accuracy attributed to IP-derived fixes, in meters. These are coarse by
// nature; callers gate on accuracy before trusting a fix for map work.
const (
	ipapiAccuracyMeters  = 1000
	ipinfoAccuracyMeters = 5000
)

// IPLocator resolves a coarse position from the caller's public IP. It tries
// ipapi.co first and falls back to ipinfo.io.
type IPLocator struct {
	client *http.Client
	logger *logging.ChanneledLogger
}

// NewIPLocator creates an IP-based locator with a pooled HTTP client.
func NewIPLocator(logger *logging.ChanneledLogger) *IPLocator {
	return &IPLocator{
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// CurrentLocation returns the best IP-derived fix.
func (l *IPLocator) CurrentLocation(ctx context.Context) (*geo.Coordinate, error) {
	if coord, err := l.fromIpapi(ctx); err == nil {
		return coord, nil
	} else if l.logger != nil {
		l.logger.Location().Debug("Primary IP geolocation failed", "error", err.Error())
	}

	coord, err := l.fromIpinfo(ctx)
	if err != nil {
		if l.logger != nil {
			l.logger.Location().Debug("Fallback IP geolocation failed", "error", err.Error())
		}
		return nil, ErrNoFix
	}
	return coord, nil
}

// Watch polls for a fresh fix on the given interval. The public IP rarely
// moves, but the polling keeps downstream consumers uniform across providers.
func (l *IPLocator) Watch(ctx context.Context, fn func(geo.Coordinate), interval time.Duration) (Subscription, error) {
	watchCtx, cancel := context.WithCancel(ctx)

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-ticker.C:
				coord, err := l.CurrentLocation(watchCtx)
				if err != nil {
					continue
				}
				fn(*coord)
			}
		}
	}()

	return NewSubscription(cancel), nil
}

func (l *IPLocator) fromIpapi(ctx context.Context) (*geo.Coordinate, error) {
	var payload struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	}
	if err := l.getJSON(ctx, "https://ipapi.co/json/", &payload); err != nil {
		return nil, err
	}
	if payload.Latitude == 0 && payload.Longitude == 0 {
		return nil, ErrNoFix
	}
	return &geo.Coordinate{Lat: payload.Latitude, Lon: payload.Longitude, Accuracy: ipapiAccuracyMeters}, nil
}

func (l *IPLocator) fromIpinfo(ctx context.Context) (*geo.Coordinate, error) {
	var payload struct {
		Loc string `json:"loc"` // "lat,lon"
	}
	if err := l.getJSON(ctx, "https://ipinfo.io/json", &payload); err != nil {
		return nil, err
	}

	parts := strings.Split(payload.Loc, ",")
	if len(parts) != 2 {
		return nil, ErrNoFix
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return nil, ErrNoFix
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return nil, ErrNoFix
	}
	return &geo.Coordinate{Lat: lat, Lon: lon, Accuracy: ipinfoAccuracyMeters}, nil
}

func (l *IPLocator) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", config.HTTPUserAgent)

	resp, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("location: %s returned status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
