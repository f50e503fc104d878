package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func homeNetwork(id, ownerID, ssid string) *network.WiFiNetwork {
	return &network.WiFiNetwork{
		ID:                 id,
		OwnerID:            ownerID,
		SSID:               ssid,
		Latitude:           -35.967,
		Longitude:          -62.734,
		NetworkType:        network.TypeHome,
		MaxConcurrentUsers: 3,
		Status:             "active",
	}
}

func TestSessionLifecycle(t *testing.T) {
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	session, err := svc.StartConnection(context.Background(), "user-1", "net-1", "device-1", -35.9, -62.7)
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, network.StatusActive, session.Status)
	assert.Len(t, session.ID, 26)

	require.NoError(t, svc.EndConnection(context.Background(), session.ID, 300))

	stored, err := conns.FindByID(session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, network.StatusCompleted, stored.Status)
	require.NotNil(t, stored.DurationSeconds)
	assert.EqualValues(t, 300, *stored.DurationSeconds)
	require.NotNil(t, stored.ConnectionEnd)

	// Ending again is a no-op; no duplicate row, no error.
	require.NoError(t, svc.EndConnection(context.Background(), session.ID, 300))
	assert.Equal(t, 1, conns.count())
}

func TestSessionTimeoutTerminatesOnlyActive(t *testing.T) {
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	session, err := svc.StartConnection(context.Background(), "user-1", "net-1", "device-1", 0, 0)
	require.NoError(t, err)

	svc.enforceAfter(session.ID, 10*time.Millisecond, 60)

	require.Eventually(t, func() bool {
		stored, _ := conns.FindByID(session.ID)
		return stored != nil && stored.Status == network.StatusTimeout
	}, time.Second, 10*time.Millisecond)

	stored, _ := conns.FindByID(session.ID)
	require.NotNil(t, stored.DurationSeconds)
	assert.EqualValues(t, 60*60, *stored.DurationSeconds)
}

func TestSessionTimeoutSkipsCompleted(t *testing.T) {
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	session, err := svc.StartConnection(context.Background(), "user-1", "net-1", "device-1", 0, 0)
	require.NoError(t, err)
	require.NoError(t, svc.EndConnection(context.Background(), session.ID, 120))

	svc.enforceAfter(session.ID, 10*time.Millisecond, 60)
	time.Sleep(60 * time.Millisecond)

	stored, _ := conns.FindByID(session.ID)
	assert.Equal(t, network.StatusCompleted, stored.Status, "a completed session must not be rewritten to timeout")
	assert.EqualValues(t, 120, *stored.DurationSeconds)
}

func TestEndConnectionSkipsTimedOutSession(t *testing.T) {
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	session, err := svc.StartConnection(context.Background(), "user-1", "net-1", "device-1", 0, 0)
	require.NoError(t, err)

	svc.enforceAfter(session.ID, 10*time.Millisecond, 60)
	require.Eventually(t, func() bool {
		stored, _ := conns.FindByID(session.ID)
		return stored != nil && stored.Status == network.StatusTimeout
	}, time.Second, 10*time.Millisecond)

	// A late disconnect (say a reconcile tick after the timer fired) must not
	// rewrite the terminal row.
	require.NoError(t, svc.EndConnection(context.Background(), session.ID, 999))

	stored, _ := conns.FindByID(session.ID)
	assert.Equal(t, network.StatusTimeout, stored.Status, "a timed-out session must stay timed out")
	assert.EqualValues(t, 60*60, *stored.DurationSeconds)
}

func TestEndConnectionCancelsTimer(t *testing.T) {
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	session, err := svc.StartConnection(context.Background(), "user-1", "net-1", "device-1", 0, 0)
	require.NoError(t, err)

	svc.enforceAfter(session.ID, 50*time.Millisecond, 60)
	require.NoError(t, svc.EndConnection(context.Background(), session.ID, 5))
	time.Sleep(100 * time.Millisecond)

	stored, _ := conns.FindByID(session.ID)
	assert.Equal(t, network.StatusCompleted, stored.Status)
	assert.EqualValues(t, 5, *stored.DurationSeconds)
}

func TestCheckConnectionLimit(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	net.MaxConcurrentUsers = 2
	conns := newMemConnectionRepo()
	svc := newTestConnectionService(t, conns, newMemNetworkRepo(net), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	limit, err := svc.CheckConnectionLimit(context.Background(), "net-1")
	require.NoError(t, err)
	assert.True(t, limit.CanConnect)
	assert.Equal(t, 0, limit.ActiveCount)
	assert.Equal(t, 2, limit.MaxUsers)

	_, err = svc.StartConnection(context.Background(), "user-1", "net-1", "d1", 0, 0)
	require.NoError(t, err)
	_, err = svc.StartConnection(context.Background(), "user-2", "net-1", "d2", 0, 0)
	require.NoError(t, err)

	limit, err = svc.CheckConnectionLimit(context.Background(), "net-1")
	require.NoError(t, err)
	assert.False(t, limit.CanConnect)
	assert.Equal(t, 2, limit.ActiveCount)
}

func TestLogAccessEventReportsHomeNetworkFailures(t *testing.T) {
	logs := &memAccessLogRepo{}
	reports := &memErrorReportRepo{}
	svc := newTestConnectionService(t, newMemConnectionRepo(), newMemNetworkRepo(homeNetwork("net-1", "owner-1", "CasaLopez")), logs, reports, nil)

	svc.LogAccessEvent(context.Background(), "net-1", "user-1", network.AccessFailedAuth, 0, 0, "bad password")

	require.Len(t, logs.byType(network.AccessFailedAuth), 1)
	require.Len(t, reports.reports, 1)
	assert.Equal(t, "owner-1", reports.reports[0].OwnerID)
	assert.Equal(t, network.AccessFailedAuth, reports.reports[0].FailureType)
}

func TestLogAccessEventSkipsPublicNetworkReports(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "Plaza")
	net.NetworkType = network.TypePublic
	reports := &memErrorReportRepo{}
	svc := newTestConnectionService(t, newMemConnectionRepo(), newMemNetworkRepo(net), &memAccessLogRepo{}, reports, nil)

	svc.LogAccessEvent(context.Background(), "net-1", "user-1", network.AccessTimeout, 0, 0, "")

	assert.Empty(t, reports.reports, "public networks have no owner to notify")
}

func TestReportNetworkFailureFallsBackToLocalQueue(t *testing.T) {
	reports := &memErrorReportRepo{failCreate: true}
	cache := newTestCache(t)
	svc := NewConnectionService(newMemConnectionRepo(), newMemNetworkRepo(homeNetwork("net-1", "owner-1", "CasaLopez")), &memAccessLogRepo{}, reports, cache, radio.Unavailable{}, nil)

	svc.ReportNetworkFailure(context.Background(), "net-1", "user-1", network.AccessTimeout, 0, 0, "slow")

	queued := cache.ErrorReports()
	require.Len(t, queued, 1)
	assert.Equal(t, "net-1", queued[0].NetworkID)
	assert.Equal(t, "owner-1", queued[0].OwnerID)
}

func TestOwnerFailureSummary(t *testing.T) {
	logs := &memAccessLogRepo{}
	now := time.Now().UTC()
	logs.events = []*network.AccessEvent{
		{ID: "e1", NetworkID: "net-1", AccessType: network.AccessFailedAuth, Timestamp: now.Add(-5 * 24 * time.Hour)},
		{ID: "e2", NetworkID: "net-1", AccessType: network.AccessTimeout, Timestamp: now.Add(-1 * time.Hour)},
		{ID: "e3", NetworkID: "net-1", AccessType: network.AccessSuccessful, Timestamp: now.Add(-2 * time.Hour)},
	}
	svc := newTestConnectionService(t, newMemConnectionRepo(), newMemNetworkRepo(homeNetwork("net-1", "owner-1", "CasaLopez")), logs, &memErrorReportRepo{}, nil)

	items, err := svc.OwnerFailureSummary(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Len(t, items, 1)

	item := items[0]
	require.NotNil(t, item.LastFailureAt)
	require.NotNil(t, item.LastSuccessAt)
	assert.True(t, item.LastFailureAt.After(*item.LastSuccessAt))
	assert.True(t, item.Failures72hApart, "failures five days apart span more than 72h")
}

func TestGetWifiStatusWithoutRadio(t *testing.T) {
	svc := newTestConnectionService(t, newMemConnectionRepo(), newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, radio.Unavailable{})

	diag := svc.GetWifiStatus(context.Background())
	assert.False(t, diag.Connected)
	assert.NotEmpty(t, diag.Err)
	assert.Nil(t, diag.Enabled)
}

func TestInternetReachabilityProbe(t *testing.T) {
	okServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer okServer.Close()
	portalServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK) // captive portal rewrote the response
	}))
	defer portalServer.Close()

	svc := newTestConnectionService(t, newMemConnectionRepo(), newMemNetworkRepo(), &memAccessLogRepo{}, &memErrorReportRepo{}, nil)

	svc.probeURL = okServer.URL
	result := svc.TestInternetReachability(context.Background(), 2*time.Second)
	assert.True(t, result.Reachable)
	assert.GreaterOrEqual(t, result.LatencyMs, int64(0))

	svc.probeURL = portalServer.URL
	result = svc.TestInternetReachability(context.Background(), 2*time.Second)
	assert.False(t, result.Reachable)
}
