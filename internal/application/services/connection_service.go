package services

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/burned13/wifiemergencia/internal/infrastructure/security"
	"github.com/burned13/wifiemergencia/pkg/config"
)

// accessTypesWorthReporting are the outcomes that become owner-visible
// failure reports in addition to the audit log entry.
var accessTypesWorthReporting = map[string]bool{
	network.AccessFailedAuth:   true,
	network.AccessTimeout:      true,
	network.AccessDisconnected: true,
}

// SessionTimer is an owned, cancellable timeout for one session. Cancel is
// idempotent and safe to race with the timer firing.
type SessionTimer struct {
	timer *time.Timer
	once  sync.Once
}

// Cancel stops the timer. A timer that already fired is left alone.
func (t *SessionTimer) Cancel() {
	t.once.Do(func() {
		t.timer.Stop()
	})
}

// ConnectionService manages the session lifecycle against the remote record
// store, with the local cache as the offline fallback for failure reports.
type ConnectionService struct {
	connections  network.ConnectionRepository
	networks     network.NetworkRepository
	accessLogs   network.AccessLogRepository
	errorReports network.ErrorReportRepository
	cache        *manager.Manager
	radio        radio.Capability
	logger       *logging.ChanneledLogger

	probeURL string

	timersMu sync.Mutex
	timers   map[string]*SessionTimer
}

// NewConnectionService creates a new connection service.
func NewConnectionService(
	connections network.ConnectionRepository,
	networks network.NetworkRepository,
	accessLogs network.AccessLogRepository,
	errorReports network.ErrorReportRepository,
	cache *manager.Manager,
	radioCap radio.Capability,
	logger *logging.ChanneledLogger,
) *ConnectionService {
	return &ConnectionService{
		connections:  connections,
		networks:     networks,
		accessLogs:   accessLogs,
		errorReports: errorReports,
		cache:        cache,
		radio:        radioCap,
		logger:       logger,
		probeURL:     config.ReachabilityProbeURL,
		timers:       make(map[string]*SessionTimer),
	}
}

// =============================================================================
// Session Lifecycle
// =============================================================================

// StartConnection opens an active session row and logs the successful access.
func (s *ConnectionService) StartConnection(ctx context.Context, userID, networkID, deviceID string, lat, lon float64) (*network.ConnectionSession, error) {
	session := &network.ConnectionSession{
		ID:              security.GenerateULID(),
		UserID:          userID,
		NetworkID:       networkID,
		DeviceID:        deviceID,
		ConnectionStart: time.Now().UTC(),
		Status:          network.StatusActive,
		UserLatitude:    lat,
		UserLongitude:   lon,
	}

	if err := s.connections.Create(session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	s.LogAccessEvent(ctx, networkID, userID, network.AccessSuccessful, lat, lon, "")

	if s.logger != nil {
		s.logger.Connection().Info("Session started", "sessionId", session.ID, "networkId", networkID, "userId", userID)
	}
	return session, nil
}

// EndConnection completes a session. A session already in a terminal state
// (completed, failed, timeout) is left untouched; ending it again is a no-op,
// not an error. Any registered timeout timer is cancelled.
func (s *ConnectionService) EndConnection(ctx context.Context, sessionID string, durationSeconds int64) error {
	s.cancelTimer(sessionID)

	session, err := s.connections.FindByID(sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session: %w", err)
	}
	if session == nil || session.Status != network.StatusActive {
		return nil
	}

	if err := s.connections.Terminate(sessionID, network.StatusCompleted, time.Now().UTC(), durationSeconds); err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}

	if s.logger != nil {
		s.logger.Connection().Info("Session ended", "sessionId", sessionID, "durationSeconds", durationSeconds)
	}
	return nil
}

// EnforceSessionTimeout arms a timeout for a session. When it fires, the
// session is re-read and terminated only if still active, so a completed
// session is never overwritten. The deadline is best-effort, not exact
// scheduling.
func (s *ConnectionService) EnforceSessionTimeout(sessionID string, timeoutMinutes int) *SessionTimer {
	return s.enforceAfter(sessionID, time.Duration(timeoutMinutes)*time.Minute, timeoutMinutes)
}

func (s *ConnectionService) enforceAfter(sessionID string, duration time.Duration, timeoutMinutes int) *SessionTimer {
	st := &SessionTimer{}
	st.timer = time.AfterFunc(duration, func() {
		s.timersMu.Lock()
		delete(s.timers, sessionID)
		s.timersMu.Unlock()

		session, err := s.connections.FindByID(sessionID)
		if err != nil {
			if s.logger != nil {
				s.logger.Connection().Error("Timeout check failed", "sessionId", sessionID, "error", err.Error())
			}
			return
		}
		if session == nil || session.Status != network.StatusActive {
			return
		}

		if err := s.connections.Terminate(sessionID, network.StatusTimeout, time.Now().UTC(), int64(timeoutMinutes)*60); err != nil {
			if s.logger != nil {
				s.logger.Connection().Error("Timeout termination failed", "sessionId", sessionID, "error", err.Error())
			}
			return
		}
		if s.logger != nil {
			s.logger.Connection().Info("Session timed out", "sessionId", sessionID, "timeoutMinutes", timeoutMinutes)
		}
	})

	s.timersMu.Lock()
	s.timers[sessionID] = st
	s.timersMu.Unlock()
	return st
}

func (s *ConnectionService) cancelTimer(sessionID string) {
	s.timersMu.Lock()
	st, ok := s.timers[sessionID]
	if ok {
		delete(s.timers, sessionID)
	}
	s.timersMu.Unlock()
	if ok {
		st.Cancel()
	}
}

// CheckConnectionLimit compares active sessions against the network's ceiling.
func (s *ConnectionService) CheckConnectionLimit(ctx context.Context, networkID string) (*network.ConnectionLimit, error) {
	net, err := s.networks.FindByID(networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to load network %s: %w", networkID, err)
	}

	max := config.DefaultMaxConcurrent
	if net != nil && net.MaxConcurrentUsers > 0 {
		max = net.MaxConcurrentUsers
	}

	active, err := s.connections.FindActiveByNetworkID(networkID)
	if err != nil {
		return nil, fmt.Errorf("failed to count active sessions: %w", err)
	}

	return &network.ConnectionLimit{
		CanConnect:  len(active) < max,
		ActiveCount: len(active),
		MaxUsers:    max,
	}, nil
}

// GetConnectionHistory returns a user's most recent sessions.
func (s *ConnectionService) GetConnectionHistory(ctx context.Context, userID string, limit int) ([]*network.ConnectionSession, error) {
	if limit <= 0 {
		limit = 20
	}
	return s.connections.FindByUserID(userID, limit)
}

// GetActiveConnections returns the sessions still active on a network.
func (s *ConnectionService) GetActiveConnections(ctx context.Context, networkID string) ([]*network.ConnectionSession, error) {
	return s.connections.FindActiveByNetworkID(networkID)
}

// =============================================================================
// Access Audit & Failure Reporting
// =============================================================================

// LogAccessEvent appends an audit record. Connection-quality failures also
// produce an owner-visible report. Audit failures are logged and swallowed;
// the caller's flow never depends on the audit trail.
func (s *ConnectionService) LogAccessEvent(ctx context.Context, networkID, userID, accessType string, lat, lon float64, errMsg string) {
	event := &network.AccessEvent{
		ID:           security.GenerateULID(),
		NetworkID:    networkID,
		UserID:       userID,
		AccessType:   accessType,
		Latitude:     lat,
		Longitude:    lon,
		Timestamp:    time.Now().UTC(),
		ErrorMessage: errMsg,
	}

	if err := s.accessLogs.Create(event); err != nil {
		if s.logger != nil {
			s.logger.Connection().Error("Access log write failed", "networkId", networkID, "accessType", accessType, "error", err.Error())
		}
	}

	if accessTypesWorthReporting[accessType] {
		s.ReportNetworkFailure(ctx, networkID, userID, accessType, lat, lon, errMsg)
	}
}

// ReportNetworkFailure records an owner-visible failure for home networks.
// When the remote store cannot take the report, it is queued in the local
// cache instead. Never errors back to the caller.
func (s *ConnectionService) ReportNetworkFailure(ctx context.Context, networkID, userID, failureType string, lat, lon float64, message string) {
	report := &network.ErrorReport{
		ID:          security.GenerateULID(),
		NetworkID:   networkID,
		UserID:      userID,
		FailureType: failureType,
		Latitude:    lat,
		Longitude:   lon,
		OccurredAt:  time.Now().UTC(),
		Message:     message,
	}

	net, err := s.networks.FindByID(networkID)
	if err != nil || net == nil {
		if s.logger != nil {
			s.logger.Connection().Debug("Network lookup failed, queuing report locally", "networkId", networkID)
		}
		s.cache.AddErrorReport(report)
		return
	}

	if net.NetworkType != network.TypeHome {
		return
	}
	report.OwnerID = net.OwnerID

	if err := s.errorReports.Create(report); err != nil {
		if s.logger != nil {
			s.logger.Connection().Debug("Remote report insert failed, queuing locally", "networkId", networkID, "error", err.Error())
		}
		s.cache.AddErrorReport(report)
	}
}

// OwnerFailureSummary aggregates the last 30 days of access history for each
// home network an owner shares: most recent failure and success, and whether
// the failures span at least 72 hours (a persistent problem rather than a
// one-off).
func (s *ConnectionService) OwnerFailureSummary(ctx context.Context, ownerID string) ([]*network.FailureSummaryItem, error) {
	nets, err := s.networks.FindByOwnerID(ownerID, network.TypeHome)
	if err != nil {
		return nil, fmt.Errorf("failed to load owner networks: %w", err)
	}

	since := time.Now().UTC().AddDate(0, 0, -30)
	items := make([]*network.FailureSummaryItem, 0, len(nets))
	for _, net := range nets {
		events, err := s.accessLogs.FindByNetworkIDSince(net.ID, since)
		if err != nil {
			return nil, fmt.Errorf("failed to load access history for %s: %w", net.ID, err)
		}

		item := &network.FailureSummaryItem{Network: net}
		var earliestFailure, latestFailure *time.Time
		for _, event := range events {
			ts := event.Timestamp
			if event.AccessType == network.AccessSuccessful {
				if item.LastSuccessAt == nil || ts.After(*item.LastSuccessAt) {
					t := ts
					item.LastSuccessAt = &t
				}
				continue
			}
			if item.LastFailureAt == nil || ts.After(*item.LastFailureAt) {
				t := ts
				item.LastFailureAt = &t
			}
			if latestFailure == nil || ts.After(*latestFailure) {
				t := ts
				latestFailure = &t
			}
			if earliestFailure == nil || ts.Before(*earliestFailure) {
				t := ts
				earliestFailure = &t
			}
		}
		if earliestFailure != nil && latestFailure != nil {
			item.Failures72hApart = latestFailure.Sub(*earliestFailure) >= 72*time.Hour
		}
		items = append(items, item)
	}
	return items, nil
}

// =============================================================================
// Diagnostics
// =============================================================================

// GetWifiStatus returns a best-effort view of the radio. An absent or failing
// capability reads as not connected, never as a hard error.
func (s *ConnectionService) GetWifiStatus(ctx context.Context) *network.WifiDiagnostics {
	diag := &network.WifiDiagnostics{}

	enabled, err := s.radio.Enabled(ctx)
	if err == nil {
		diag.Enabled = &enabled
	}

	assoc, err := s.radio.CurrentAssociation(ctx)
	if err != nil {
		diag.Err = err.Error()
		return diag
	}

	diag.Connected = assoc.SSID != ""
	diag.SSID = assoc.SSID
	diag.IP = assoc.IP
	return diag
}

// TestInternetReachability probes the captive-portal detection URL.
func (s *ConnectionService) TestInternetReachability(ctx context.Context, timeout time.Duration) *network.ReachabilityResult {
	result := probeReachability(ctx, s.probeURL, timeout)
	return &result
}

// probeReachability issues one GET against a generate_204-style endpoint.
// Reachable means the expected 204 came back; anything else is a captive
// portal or no route.
func probeReachability(ctx context.Context, probeURL string, timeout time.Duration) network.ReachabilityResult {
	client := &http.Client{Timeout: timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, nil)
	if err != nil {
		return network.ReachabilityResult{Err: err.Error()}
	}
	req.Header.Set("User-Agent", config.HTTPUserAgent)

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return network.ReachabilityResult{LatencyMs: latency, Err: err.Error()}
	}
	defer resp.Body.Close()

	return network.ReachabilityResult{
		Reachable: resp.StatusCode == http.StatusNoContent,
		LatencyMs: latency,
	}
}
