// Package services holds the engine's application services: offline map
// preparation, connectivity session management and the auto-connect loop.
package services

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/geocoding"
	"github.com/burned13/wifiemergencia/internal/infrastructure/messaging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/tiles"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// ErrPrepareInProgress is returned when a map preparation run is already active.
var ErrPrepareInProgress = errors.New("offline map preparation already in progress")

// PrepareOptions tunes an offline map preparation run.
type PrepareOptions struct {
	// Force skips the reachability and accuracy gates and the geocode step.
	Force bool
	// BBox, when set, overrides region resolution entirely.
	BBox *geo.BoundingBox
}

// PrepareResult summarizes a preparation run.
type PrepareResult struct {
	Downloaded int     `json:"downloaded"`
	Failed     int     `json:"failed"`
	RadiusKm   float64 `json:"radiusKm"`
}

// MapTileService owns the tile fetch pipeline and the offline region planner.
type MapTileService struct {
	cache       *manager.Manager
	client      *tiles.Client
	geocoder    geocoding.Client
	broadcaster *messaging.ProgressBroadcaster
	logger      *logging.ChanneledLogger

	osmBaseURL       string
	wikimediaBaseURL string
	probeURL         string

	mu      sync.Mutex
	running bool
}

// NewMapTileService creates a new map tile service.
func NewMapTileService(
	cache *manager.Manager,
	client *tiles.Client,
	geocoder geocoding.Client,
	broadcaster *messaging.ProgressBroadcaster,
	logger *logging.ChanneledLogger,
) *MapTileService {
	return &MapTileService{
		cache:            cache,
		client:           client,
		geocoder:         geocoder,
		broadcaster:      broadcaster,
		logger:           logger,
		osmBaseURL:       config.TileOSMBaseURL,
		wikimediaBaseURL: config.TileWikimediaBaseURL,
		probeURL:         config.ReachabilityProbeURL,
	}
}

// =============================================================================
// Tile Fetch Pipeline
// =============================================================================

// sourceURLs returns candidate URLs for a tile, best source first. A mirror
// recorded in the cache goes ahead of the canonical servers.
func (s *MapTileService) sourceURLs(key geo.TileKey) []string {
	var urls []string
	if mirror, ok := s.cache.TileBaseURL(); ok {
		urls = append(urls, tiles.URL(mirror, key))
	}
	urls = append(urls, tiles.URL(s.osmBaseURL, key)+"?v=1")
	urls = append(urls, tiles.URL(s.wikimediaBaseURL, key))
	return urls
}

// FetchTile walks the tile sources in order, keeps the first payload that
// does not look blank, persists it as a data URI and returns it. When every
// source failed or looked blank, one unconditional last-chance fetch runs
// against the secondary server before giving up. Failure is a miss, never an
// error.
func (s *MapTileService) FetchTile(ctx context.Context, key geo.TileKey) (string, bool) {
	if cached, ok := s.cache.GetMapTile(key); ok {
		return cached, true
	}

	for _, url := range s.sourceURLs(key) {
		payload, err := s.client.Fetch(ctx, url)
		if err != nil {
			if s.logger != nil {
				s.logger.Tiles().Debug("Tile fetch failed", "url", url, "error", err.Error())
			}
			continue
		}
		if isProbablyBlank(payload) {
			if s.logger != nil {
				s.logger.Tiles().Debug("Tile looked blank, trying next source", "url", url, "bytes", len(payload))
			}
			continue
		}
		return s.keepTile(key, payload), true
	}

	if config.TileBypassHeuristicOnFinalAttempt {
		payload, err := s.client.Fetch(ctx, tiles.URL(s.wikimediaBaseURL, key))
		if err == nil && len(payload) > 0 {
			return s.keepTile(key, payload), true
		}
	}

	return "", false
}

func (s *MapTileService) keepTile(key geo.TileKey, payload []byte) string {
	dataURI := "data:image/png;base64," + base64.StdEncoding.EncodeToString(payload)
	s.cache.SaveMapTile(key, dataURI)
	return dataURI
}

// isProbablyBlank classifies a tile payload without decoding the PNG. Tiny
// payloads are blank; otherwise a strided sample of the compressed bytes is
// checked for variety. Ocean and empty-land tiles compress to near-constant
// streams.
func isProbablyBlank(payload []byte) bool {
	if len(payload) < config.BlankTileMinBytes {
		return true
	}

	stride := len(payload) / config.BlankTileSampleBudget
	if stride < 1 {
		stride = 1
	}

	var seen [256]bool
	distinct := 0
	for i := 0; i < len(payload); i += stride {
		b := payload[i]
		if !seen[b] {
			seen[b] = true
			distinct++
			if distinct > config.BlankTileDistinctAccept {
				return false
			}
		}
	}
	return distinct < config.BlankTileDistinctFloor
}

// =============================================================================
// Offline Region Planner
// =============================================================================

// PrepareOfflineMap resolves the region around center and downloads its tile
// grids for the requested zooms, publishing progress along the way. Only one
// run executes at a time. Unless forced, the run is gated on connectivity and
// on the location fix: accuracy must be positive and within
// MaxLocationAccuracyMeters, so a zero accuracy reads as "no fix" rather than
// a perfect one.
func (s *MapTileService) PrepareOfflineMap(ctx context.Context, center geo.Coordinate, zooms []int, opts PrepareOptions) (PrepareResult, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return PrepareResult{}, ErrPrepareInProgress
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	if !opts.Force {
		if !s.online(ctx) {
			if s.logger != nil {
				s.logger.Tiles().Info("Map preparation skipped, no connectivity")
			}
			return PrepareResult{}, nil
		}
		if center.Accuracy <= 0 || center.Accuracy > config.MaxLocationAccuracyMeters {
			if s.logger != nil {
				s.logger.Tiles().Info("Map preparation skipped, location fix too coarse", "accuracyMeters", center.Accuracy)
			}
			return PrepareResult{}, nil
		}
	}

	bbox, radiusKm := s.resolveRegion(ctx, center, opts)

	s.cache.SaveOfflineMapRegion(&network.OfflineRegion{
		Center:   center,
		RadiusKm: radiusKm,
		Zooms:    zooms,
	})

	total := 0
	for _, zoom := range zooms {
		total += geo.TileCount(bbox, zoom)
	}

	status := network.DownloadStatus{InProgress: true, Total: total}
	s.publishStatus(status)

	start := time.Now()
	for _, zoom := range zooms {
		xMin, xMax, yMin, yMax := geo.TileRange(bbox, zoom)
		for x := xMin; x <= xMax; x++ {
			for y := yMin; y <= yMax; y++ {
				if ctx.Err() != nil {
					status.InProgress = false
					s.publishStatus(status)
					s.cache.SetMapTilesReady(status.Downloaded > 0)
					return PrepareResult{Downloaded: status.Downloaded, Failed: status.Failed, RadiusKm: radiusKm}, ctx.Err()
				}

				if _, ok := s.FetchTile(ctx, geo.TileKey{Zoom: zoom, X: x, Y: y}); ok {
					status.Downloaded++
				} else {
					status.Failed++
				}
				s.publishStatus(status)
			}
		}
	}

	status.InProgress = false
	s.publishStatus(status)
	s.cache.SetMapTilesReady(status.Downloaded > 0)

	if s.logger != nil {
		s.logger.Tiles().Info("Offline map preparation finished",
			"downloaded", status.Downloaded, "failed", status.Failed,
			"total", total, "radiusKm", radiusKm, "duration", time.Since(start))
	}

	return PrepareResult{Downloaded: status.Downloaded, Failed: status.Failed, RadiusKm: radiusKm}, nil
}

// resolveRegion picks the bounding box to cover. An explicit box wins; a
// normal run geocodes the surrounding city; anything else falls back to a
// fixed square around the center.
func (s *MapTileService) resolveRegion(ctx context.Context, center geo.Coordinate, opts PrepareOptions) (geo.BoundingBox, float64) {
	if opts.BBox != nil {
		radius := opts.BBox.DiagonalKm() / 2
		if radius < config.MinRegionRadiusKm {
			radius = config.MinRegionRadiusKm
		}
		return *opts.BBox, radius
	}

	if !opts.Force && s.geocoder != nil {
		if bbox, ok := s.geocodeCity(ctx, center); ok {
			radius := bbox.DiagonalKm() / 2
			if radius < config.MinRegionRadiusKm {
				radius = config.MinRegionRadiusKm
			}
			return bbox, radius
		}
	}

	return geo.SquareAround(center, config.FallbackRegionSpanKm), config.FallbackRegionSpanKm
}

func (s *MapTileService) geocodeCity(ctx context.Context, center geo.Coordinate) (geo.BoundingBox, bool) {
	place, err := s.geocoder.Reverse(ctx, center.Lat, center.Lon)
	if err != nil {
		if s.logger != nil {
			s.logger.Tiles().Debug("Reverse geocode failed, using fallback square", "error", err.Error())
		}
		return geo.BoundingBox{}, false
	}

	query := place.City
	if place.Country != "" {
		query += ", " + place.Country
	}
	bbox, err := s.geocoder.Search(ctx, query)
	if err != nil {
		if s.logger != nil {
			s.logger.Tiles().Debug("Forward geocode failed, using fallback square", "query", query, "error", err.Error())
		}
		return geo.BoundingBox{}, false
	}
	return *bbox, true
}

// online reports whether tile fetching has a chance: either the internet
// probe answers or a dedicated mirror is configured.
func (s *MapTileService) online(ctx context.Context) bool {
	if _, ok := s.cache.TileBaseURL(); ok {
		return true
	}
	result := probeReachability(ctx, s.probeURL, config.ReachabilityProbeTimeout)
	return result.Reachable
}

func (s *MapTileService) publishStatus(status network.DownloadStatus) {
	s.cache.SetDownloadStatus(status)
	if s.broadcaster != nil {
		s.broadcaster.Publish(status)
	}
}

// =============================================================================
// Read Accessors
// =============================================================================

// CachedTile returns a tile from the cache only, without any fetching.
func (s *MapTileService) CachedTile(key geo.TileKey) (string, bool) {
	return s.cache.GetMapTile(key)
}

// DownloadStatus returns the last published preparation progress.
func (s *MapTileService) DownloadStatus() (network.DownloadStatus, bool) {
	return s.cache.GetDownloadStatus()
}

// Region returns the covered-area descriptor, nil when nothing was prepared.
func (s *MapTileService) Region() *network.OfflineRegion {
	return s.cache.OfflineMapRegion()
}

// TilesReady reports whether a completed tile set is available offline.
func (s *MapTileService) TilesReady() bool {
	return s.cache.MapTilesReady()
}

// ClearOfflineMap drops the cached tile set and its metadata.
func (s *MapTileService) ClearOfflineMap() {
	s.cache.ClearMapTiles()
}
