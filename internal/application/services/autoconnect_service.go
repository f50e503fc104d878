package services

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/location"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/burned13/wifiemergencia/internal/infrastructure/security"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// AutoConnectService watches the device position and joins the best shared
// network when one comes within range. It also reconciles the cached session
// snapshot against the actual radio state, closing sessions the radio dropped
// silently.
type AutoConnectService struct {
	connections *ConnectionService
	cache       *manager.Manager
	radio       radio.Capability
	locations   location.Provider
	logger      *logging.ChanneledLogger

	userID   string
	deviceID string

	mu              sync.Mutex
	busy            bool
	lastConnectedID string
	pool            []*network.WiFiNetwork
}

// NewAutoConnectService creates a new auto-connect loop for one device.
func NewAutoConnectService(
	connections *ConnectionService,
	cache *manager.Manager,
	radioCap radio.Capability,
	locations location.Provider,
	userID, deviceID string,
	logger *logging.ChanneledLogger,
) *AutoConnectService {
	return &AutoConnectService{
		connections: connections,
		cache:       cache,
		radio:       radioCap,
		locations:   locations,
		userID:      userID,
		deviceID:    deviceID,
		logger:      logger,
	}
}

// SetNetworkPool replaces the set of known shared networks the selector
// chooses from.
func (s *AutoConnectService) SetNetworkPool(pool []*network.WiFiNetwork) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pool = pool
}

func (s *AutoConnectService) networkPool() []*network.WiFiNetwork {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// =============================================================================
// Candidate Selection
// =============================================================================

// SelectCandidate picks the network to try, in order of preference: the one
// we connected to last time if it is scan-visible, else the scan-visible one
// with the best latency history, else the geometrically nearest.
func (s *AutoConnectService) SelectCandidate(ctx context.Context, loc geo.Coordinate, pool []*network.WiFiNetwork) *network.WiFiNetwork {
	if len(pool) == 0 {
		return nil
	}

	visible := s.visibleSSIDs(ctx)

	if last := s.cache.ConnectionSnapshot(manager.SnapshotLastSSID); last != nil {
		for _, net := range pool {
			if strings.EqualFold(net.SSID, last.SSID) && visible[strings.ToLower(net.SSID)] {
				return net
			}
		}
	}

	var bestByLatency *network.WiFiNetwork
	bestAvg := 0.0
	for _, net := range pool {
		if !visible[strings.ToLower(net.SSID)] {
			continue
		}
		avg, ok := s.cache.LatencyAvg(net.SSID)
		if !ok {
			continue
		}
		if bestByLatency == nil || avg < bestAvg {
			bestByLatency = net
			bestAvg = avg
		}
	}
	if bestByLatency != nil {
		return bestByLatency
	}

	var nearest *network.WiFiNetwork
	nearestKm := 0.0
	for _, net := range pool {
		d := geo.HaversineKm(loc.Lat, loc.Lon, net.Latitude, net.Longitude)
		if nearest == nil || d < nearestKm {
			nearest = net
			nearestKm = d
		}
	}
	return nearest
}

func (s *AutoConnectService) visibleSSIDs(ctx context.Context) map[string]bool {
	visible := make(map[string]bool)
	scanned, err := s.radio.ScanVisibleSSIDs(ctx)
	if err != nil {
		return visible
	}
	for _, n := range scanned {
		visible[strings.ToLower(n.SSID)] = true
	}
	return visible
}

// =============================================================================
// Trigger
// =============================================================================

// HandleLocation evaluates one position fix. When the selected candidate is
// within the auto-connect radius and differs from the last network we joined
// automatically, it attempts the join and opens a session. A busy flag
// suppresses overlapping attempts from a fast location stream.
func (s *AutoConnectService) HandleLocation(ctx context.Context, loc geo.Coordinate) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return
	}
	s.busy = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	candidate := s.SelectCandidate(ctx, loc, s.networkPool())
	if candidate == nil {
		return
	}

	distanceKm := geo.HaversineKm(loc.Lat, loc.Lon, candidate.Latitude, candidate.Longitude)
	if distanceKm > config.AutoConnectRadiusKm {
		return
	}

	s.mu.Lock()
	alreadyTried := candidate.ID == s.lastConnectedID
	s.mu.Unlock()
	if alreadyTried {
		return
	}

	s.connect(ctx, candidate, loc)
}

func (s *AutoConnectService) connect(ctx context.Context, candidate *network.WiFiNetwork, loc geo.Coordinate) {
	password := ""
	if candidate.PasswordEncrypted != "" {
		decrypted, err := security.Decrypt(candidate.PasswordEncrypted, config.CredentialEncryptionKey)
		if err != nil {
			if s.logger != nil {
				s.logger.Connection().Error("Credential decrypt failed", "networkId", candidate.ID, "error", err.Error())
			}
			return
		}
		password = decrypted
	}

	if err := s.radio.Join(ctx, candidate.SSID, password); err != nil {
		if s.logger != nil {
			s.logger.Connection().Info("Auto-connect join failed", "ssid", candidate.SSID, "error", err.Error())
		}
		s.connections.LogAccessEvent(ctx, candidate.ID, s.userID, joinFailureType(err), loc.Lat, loc.Lon, err.Error())
		return
	}

	session, err := s.connections.StartConnection(ctx, s.userID, candidate.ID, s.deviceID, loc.Lat, loc.Lon)
	if err != nil {
		if s.logger != nil {
			s.logger.Connection().Error("Session open failed after join", "networkId", candidate.ID, "error", err.Error())
		}
		return
	}

	snapshot := &network.SessionSnapshot{
		ID:        session.ID,
		NetworkID: candidate.ID,
		UserID:    s.userID,
		SSID:      candidate.SSID,
		StartedAt: session.ConnectionStart,
	}
	s.cache.SaveConnectionSnapshot(manager.SnapshotActive, snapshot)
	s.cache.SaveConnectionSnapshot(manager.SnapshotLastSSID, snapshot)

	s.connections.EnforceSessionTimeout(session.ID, config.SessionTimeoutMinutes)

	if probe := s.connections.TestInternetReachability(ctx, config.ReachabilityProbeTimeout); probe.Reachable {
		s.cache.AddLatencySample(candidate.SSID, float64(probe.LatencyMs))
	}

	s.mu.Lock()
	s.lastConnectedID = candidate.ID
	s.mu.Unlock()

	if s.logger != nil {
		s.logger.Connection().Info("Auto-connected", "ssid", candidate.SSID, "sessionId", session.ID)
	}
}

// joinFailureType maps a join error to the access type recorded in the audit
// log. Timeouts get their own class so owner failure reports distinguish a
// slow or unreachable network from a rejected credential.
func joinFailureType(err error) string {
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return network.AccessTimeout
	}
	return network.AccessFailedAuth
}

// =============================================================================
// Loop
// =============================================================================

// Run subscribes to the location stream and drives the reconciliation ticker
// until the context is cancelled.
func (s *AutoConnectService) Run(ctx context.Context) error {
	sub, err := s.locations.Watch(ctx, func(loc geo.Coordinate) {
		s.HandleLocation(ctx, loc)
	}, config.LocationWatchInterval)
	if err != nil {
		return err
	}
	defer sub.Stop()

	ticker := time.NewTicker(config.ReconcileInterval)
	defer ticker.Stop()

	if s.logger != nil {
		s.logger.Connection().Info("Auto-connect loop started",
			"watchInterval", config.LocationWatchInterval, "reconcileInterval", config.ReconcileInterval)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.Reconcile(ctx)
		}
	}
}

// Reconcile compares the cached active-session snapshot against the actual
// radio association. A dropped or switched link closes the session, logs the
// disconnect, and clears the snapshot so the transition fires exactly once.
func (s *AutoConnectService) Reconcile(ctx context.Context) {
	snapshot := s.cache.ConnectionSnapshot(manager.SnapshotActive)
	if snapshot == nil {
		return
	}

	assoc, err := s.radio.CurrentAssociation(ctx)
	stillConnected := err == nil && assoc.SSID != "" && strings.EqualFold(assoc.SSID, snapshot.SSID)
	if stillConnected {
		return
	}

	duration := int64(time.Since(snapshot.StartedAt).Seconds())
	if err := s.connections.EndConnection(ctx, snapshot.ID, duration); err != nil {
		if s.logger != nil {
			s.logger.Connection().Error("Reconcile session close failed", "sessionId", snapshot.ID, "error", err.Error())
		}
	}
	s.connections.LogAccessEvent(ctx, snapshot.NetworkID, snapshot.UserID, network.AccessDisconnected, 0, 0, "wifi_disconnected")
	s.cache.ClearConnectionSnapshot(manager.SnapshotActive)

	if s.logger != nil {
		s.logger.Connection().Info("Reconciled dropped session", "sessionId", snapshot.ID, "durationSeconds", duration)
	}
}
