// Package manager provides the typed facade over the persistent key-value
// store. Every value is JSON-encoded; every operation degrades to a cache
// miss or a no-op rather than returning a storage error.
package manager

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/interfaces"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/pkg/config"
)

const (
	tileKeyPrefix      = "map_tile_"
	tileIndexKey       = "map_tile_keys"
	regionKey          = "offline_map_region"
	tilesReadyKey      = "map_tiles_ready"
	downloadStatusKey  = "map_download_status"
	tileBaseURLKey     = "map_tile_base_url"
	snapshotKeyPrefix  = "connection_snapshot_"
	latencyKeyPrefix   = "network_latency_"
	pendingReportsKey  = "pending_error_reports"
)

// Snapshot slots understood by the connection services.
const (
	SnapshotActive   = "active"
	SnapshotLastSSID = "last_ssid"
)

// Manager wraps a KVStore with the typed accessors the engine services use.
// The mutex serializes read-modify-write cycles (tile index, latency
// accumulator, report queue); plain get/set paths go straight through.
type Manager struct {
	store  interfaces.KVStore
	mu     sync.Mutex
	logger *logging.ChanneledLogger
}

// NewManager creates a cache manager over the given store.
func NewManager(store interfaces.KVStore, logger *logging.ChanneledLogger) *Manager {
	if logger != nil {
		logger.Cache().Info("Initializing cache manager")
	}
	return &Manager{store: store, logger: logger}
}

// Close releases the underlying store.
func (m *Manager) Close() error {
	return m.store.Close()
}

// =============================================================================
// Map Tile Operations
// =============================================================================

// SaveMapTile persists one tile payload and records its key in the index.
// Writing the same key twice overwrites the blob and leaves the index with
// that key exactly once.
func (m *Manager) SaveMapTile(key geo.TileKey, dataURI string) {
	m.store.Set(tileKeyPrefix+key.String(), []byte(dataURI))

	m.mu.Lock()
	defer m.mu.Unlock()

	keys := m.tileIndex()
	for _, existing := range keys {
		if existing == key.String() {
			return
		}
	}
	keys = append(keys, key.String())
	m.setJSON(tileIndexKey, keys)
}

// GetMapTile retrieves one cached tile payload.
func (m *Manager) GetMapTile(key geo.TileKey) (string, bool) {
	value, ok := m.store.Get(tileKeyPrefix + key.String())
	if !ok {
		return "", false
	}
	return string(value), true
}

// AllMapTileKeys enumerates every tile key ever written, via the maintained
// index rather than store-level key listing.
func (m *Manager) AllMapTileKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tileIndex()
}

// ClearMapTiles removes every indexed tile blob plus the index, the region
// descriptor and the ready flag.
func (m *Manager) ClearMapTiles() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range m.tileIndex() {
		m.store.Remove(tileKeyPrefix + key)
	}
	m.store.Remove(tileIndexKey)
	m.store.Remove(regionKey)
	m.store.Remove(tilesReadyKey)

	if m.logger != nil {
		m.logger.Cache().Info("Offline map tiles cleared")
	}
}

// tileIndex reads the tile key index. Callers hold the mutex.
func (m *Manager) tileIndex() []string {
	var keys []string
	m.getJSON(tileIndexKey, &keys)
	return keys
}

// SaveOfflineMapRegion persists the descriptor of the covered area.
func (m *Manager) SaveOfflineMapRegion(region *network.OfflineRegion) {
	m.setJSON(regionKey, region)
}

// OfflineMapRegion retrieves the covered-area descriptor, nil when absent.
func (m *Manager) OfflineMapRegion() *network.OfflineRegion {
	var region network.OfflineRegion
	if !m.getJSON(regionKey, &region) {
		return nil
	}
	return &region
}

// SetMapTilesReady flips the tiles-ready flag.
func (m *Manager) SetMapTilesReady(ready bool) {
	m.setJSON(tilesReadyKey, ready)
}

// MapTilesReady reports whether a completed tile set is available.
func (m *Manager) MapTilesReady() bool {
	var ready bool
	if !m.getJSON(tilesReadyKey, &ready) {
		return false
	}
	return ready
}

// SetDownloadStatus publishes the current preparation progress.
func (m *Manager) SetDownloadStatus(status network.DownloadStatus) {
	m.setJSON(downloadStatusKey, status)
}

// GetDownloadStatus retrieves the last published preparation progress.
func (m *Manager) GetDownloadStatus() (network.DownloadStatus, bool) {
	var status network.DownloadStatus
	if !m.getJSON(downloadStatusKey, &status) {
		return network.DownloadStatus{}, false
	}
	return status, true
}

// SetTileBaseURL stores the preferred tile mirror base URL.
func (m *Manager) SetTileBaseURL(url string) {
	m.store.Set(tileBaseURLKey, []byte(url))
}

// TileBaseURL retrieves the preferred tile mirror base URL.
func (m *Manager) TileBaseURL() (string, bool) {
	value, ok := m.store.Get(tileBaseURLKey)
	if !ok || len(value) == 0 {
		return "", false
	}
	return string(value), true
}

// =============================================================================
// Connection Snapshot Operations
// =============================================================================

// SaveConnectionSnapshot stores a session snapshot under the given slot.
func (m *Manager) SaveConnectionSnapshot(slot string, snapshot *network.SessionSnapshot) {
	m.setJSON(snapshotKeyPrefix+slot, snapshot)
}

// ConnectionSnapshot retrieves the snapshot for a slot, nil when absent.
func (m *Manager) ConnectionSnapshot(slot string) *network.SessionSnapshot {
	var snapshot network.SessionSnapshot
	if !m.getJSON(snapshotKeyPrefix+slot, &snapshot) {
		return nil
	}
	return &snapshot
}

// ClearConnectionSnapshot removes the snapshot for a slot.
func (m *Manager) ClearConnectionSnapshot(slot string) {
	m.store.Remove(snapshotKeyPrefix + slot)
}

// =============================================================================
// Latency Accumulator Operations
// =============================================================================

// AddLatencySample folds one reachability latency measurement into the
// per-SSID running average. The sample count saturates so old networks stay
// responsive to recent behavior.
func (m *Manager) AddLatencySample(ssid string, ms float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := latencyKeyPrefix + strings.ToLower(ssid)
	var stat network.LatencyStat
	m.getJSON(key, &stat)

	count := stat.Count
	if count < config.LatencySampleCountCeiling {
		count++
	}
	stat.Avg = stat.Avg + (ms-stat.Avg)/float64(count)
	stat.Count = count
	stat.Last = ms
	m.setJSON(key, stat)
}

// LatencyAvg retrieves the running latency average for an SSID.
func (m *Manager) LatencyAvg(ssid string) (float64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stat network.LatencyStat
	if !m.getJSON(latencyKeyPrefix+strings.ToLower(ssid), &stat) || stat.Count == 0 {
		return 0, false
	}
	return stat.Avg, true
}

// =============================================================================
// Offline Error Report Queue
// =============================================================================

// AddErrorReport appends a failure report to the local fallback queue, used
// when the remote record store cannot be reached.
func (m *Manager) AddErrorReport(report *network.ErrorReport) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reports []*network.ErrorReport
	m.getJSON(pendingReportsKey, &reports)
	reports = append(reports, report)
	m.setJSON(pendingReportsKey, reports)
}

// ErrorReports returns all locally queued failure reports.
func (m *Manager) ErrorReports() []*network.ErrorReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	var reports []*network.ErrorReport
	m.getJSON(pendingReportsKey, &reports)
	return reports
}

// ClearErrorReports drops the local fallback queue.
func (m *Manager) ClearErrorReports() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store.Remove(pendingReportsKey)
}

// =============================================================================
// JSON Helpers
// =============================================================================

func (m *Manager) setJSON(key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		if m.logger != nil {
			m.logger.Cache().Error("Cache encode failed", "key", key, "error", err.Error())
		}
		return
	}
	m.store.Set(key, data)
}

func (m *Manager) getJSON(key string, out any) bool {
	data, ok := m.store.Get(key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		if m.logger != nil {
			m.logger.Cache().Error("Cache decode failed", "key", key, "error", err.Error())
		}
		return false
	}
	return true
}
