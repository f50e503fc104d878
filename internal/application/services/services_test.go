package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/stores"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Shared Test Fixtures
// =============================================================================

func newTestCache(t *testing.T) *manager.Manager {
	t.Helper()
	store, err := stores.NewSQLiteKVStore(filepath.Join(t.TempDir(), "cache.db"), nil)
	require.NoError(t, err)
	m := manager.NewManager(store, nil)
	t.Cleanup(func() { m.Close() })
	return m
}

// memConnectionRepo is an in-memory ConnectionRepository.
type memConnectionRepo struct {
	mu       sync.Mutex
	sessions map[string]*network.ConnectionSession
}

func newMemConnectionRepo() *memConnectionRepo {
	return &memConnectionRepo{sessions: make(map[string]*network.ConnectionSession)}
}

func (r *memConnectionRepo) FindByID(id string) (*network.ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (r *memConnectionRepo) FindByUserID(userID string, limit int) ([]*network.ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*network.ConnectionSession
	for _, s := range r.sessions {
		if s.UserID == userID {
			copied := *s
			out = append(out, &copied)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memConnectionRepo) FindActiveByNetworkID(networkID string) ([]*network.ConnectionSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*network.ConnectionSession
	for _, s := range r.sessions {
		if s.NetworkID == networkID && s.Status == network.StatusActive {
			copied := *s
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (r *memConnectionRepo) Create(session *network.ConnectionSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *session
	r.sessions[session.ID] = &copied
	return nil
}

func (r *memConnectionRepo) Terminate(id, status string, end time.Time, durationSeconds int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[id]
	if !ok || session.Status != network.StatusActive {
		return nil
	}
	session.Status = status
	session.ConnectionEnd = &end
	session.DurationSeconds = &durationSeconds
	return nil
}

func (r *memConnectionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// memNetworkRepo is an in-memory NetworkRepository.
type memNetworkRepo struct {
	networks map[string]*network.WiFiNetwork
}

func newMemNetworkRepo(nets ...*network.WiFiNetwork) *memNetworkRepo {
	r := &memNetworkRepo{networks: make(map[string]*network.WiFiNetwork)}
	for _, n := range nets {
		r.networks[n.ID] = n
	}
	return r
}

func (r *memNetworkRepo) FindByID(id string) (*network.WiFiNetwork, error) {
	return r.networks[id], nil
}

func (r *memNetworkRepo) FindByOwnerID(ownerID, networkType string) ([]*network.WiFiNetwork, error) {
	var out []*network.WiFiNetwork
	for _, n := range r.networks {
		if n.OwnerID != ownerID {
			continue
		}
		if networkType != "" && n.NetworkType != networkType {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// memAccessLogRepo is an in-memory AccessLogRepository.
type memAccessLogRepo struct {
	mu     sync.Mutex
	events []*network.AccessEvent
}

func (r *memAccessLogRepo) Create(event *network.AccessEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *memAccessLogRepo) FindByNetworkIDSince(networkID string, since time.Time) ([]*network.AccessEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*network.AccessEvent
	for _, e := range r.events {
		if e.NetworkID == networkID && !e.Timestamp.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *memAccessLogRepo) byType(accessType string) []*network.AccessEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*network.AccessEvent
	for _, e := range r.events {
		if e.AccessType == accessType {
			out = append(out, e)
		}
	}
	return out
}

// memErrorReportRepo is an in-memory ErrorReportRepository with a failure switch.
type memErrorReportRepo struct {
	mu         sync.Mutex
	reports    []*network.ErrorReport
	failCreate bool
}

func (r *memErrorReportRepo) Create(report *network.ErrorReport) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return context.DeadlineExceeded
	}
	r.reports = append(r.reports, report)
	return nil
}

// fakeRadio is a scriptable radio.Capability.
type fakeRadio struct {
	mu        sync.Mutex
	enabled   bool
	assoc     radio.Association
	assocErr  error
	visible   []radio.Network
	joinErr   error
	joinCalls int
}

func (f *fakeRadio) Enabled(context.Context) (bool, error) {
	return f.enabled, nil
}

func (f *fakeRadio) CurrentAssociation(context.Context) (radio.Association, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.assoc, f.assocErr
}

func (f *fakeRadio) ScanVisibleSSIDs(context.Context) ([]radio.Network, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.visible, nil
}

func (f *fakeRadio) Join(ctx context.Context, ssid, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls++
	if f.joinErr != nil {
		return f.joinErr
	}
	f.assoc = radio.Association{SSID: ssid, IP: "192.168.1.50"}
	return nil
}

func (f *fakeRadio) joins() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.joinCalls
}

func newTestConnectionService(t *testing.T, conns *memConnectionRepo, nets *memNetworkRepo, logs *memAccessLogRepo, reports *memErrorReportRepo, radioCap radio.Capability) *ConnectionService {
	t.Helper()
	if radioCap == nil {
		radioCap = radio.Unavailable{}
	}
	return NewConnectionService(conns, nets, logs, reports, newTestCache(t), radioCap, nil)
}
