package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/radio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// nearLocation is within 120m of homeNetwork's coordinates.
var nearLocation = geo.Coordinate{Lat: -35.9675, Lon: -62.734, Accuracy: 20}

func newAutoConnectFixture(t *testing.T, radioCap radio.Capability, nets ...*network.WiFiNetwork) (*AutoConnectService, *memConnectionRepo, *memAccessLogRepo, *manager.Manager) {
	t.Helper()
	cache := newTestCache(t)
	conns := newMemConnectionRepo()
	logs := &memAccessLogRepo{}
	connSvc := NewConnectionService(conns, newMemNetworkRepo(nets...), logs, &memErrorReportRepo{}, cache, radioCap, nil)

	// Keep the post-join latency probe local and fast.
	probeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(probeServer.Close)
	connSvc.probeURL = probeServer.URL
	svc := NewAutoConnectService(connSvc, cache, radioCap, nil, "user-1", "device-1", nil)
	svc.SetNetworkPool(nets)
	return svc, conns, logs, cache
}

func TestHandleLocationJoinsNearbyNetwork(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	r := &fakeRadio{}
	svc, conns, _, cache := newAutoConnectFixture(t, r, net)

	svc.HandleLocation(context.Background(), nearLocation)

	assert.Equal(t, 1, r.joins())
	assert.Equal(t, 1, conns.count())

	active := cache.ConnectionSnapshot(manager.SnapshotActive)
	require.NotNil(t, active)
	assert.Equal(t, "CasaLopez", active.SSID)
	last := cache.ConnectionSnapshot(manager.SnapshotLastSSID)
	require.NotNil(t, last)
	assert.Equal(t, "CasaLopez", last.SSID)
}

func TestHandleLocationSuppressesRepeatJoins(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	r := &fakeRadio{}
	svc, _, _, _ := newAutoConnectFixture(t, r, net)

	svc.HandleLocation(context.Background(), nearLocation)
	svc.HandleLocation(context.Background(), nearLocation)

	assert.Equal(t, 1, r.joins(), "second sample near the same network must not rejoin")
}

func TestHandleLocationIgnoresDistantNetworks(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	r := &fakeRadio{}
	svc, _, _, _ := newAutoConnectFixture(t, r, net)

	// ~11km north of the network.
	svc.HandleLocation(context.Background(), geo.Coordinate{Lat: -35.867, Lon: -62.734})

	assert.Zero(t, r.joins())
}

func TestHandleLocationLogsFailedJoin(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	r := &fakeRadio{joinErr: radio.ErrUnavailable}
	svc, conns, logs, _ := newAutoConnectFixture(t, r, net)

	svc.HandleLocation(context.Background(), nearLocation)

	assert.Zero(t, conns.count())
	assert.Len(t, logs.byType(network.AccessFailedAuth), 1)
}

func TestHandleLocationLogsTimedOutJoin(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "CasaLopez")
	r := &fakeRadio{joinErr: context.DeadlineExceeded}
	svc, conns, logs, _ := newAutoConnectFixture(t, r, net)

	svc.HandleLocation(context.Background(), nearLocation)

	assert.Zero(t, conns.count())
	assert.Len(t, logs.byType(network.AccessTimeout), 1, "a join timeout is not an auth failure")
	assert.Empty(t, logs.byType(network.AccessFailedAuth))
}

func TestSelectCandidatePrefersLastSSID(t *testing.T) {
	a := homeNetwork("net-a", "owner-1", "CasaLopez")
	b := homeNetwork("net-b", "owner-2", "CasaGarcia")
	r := &fakeRadio{visible: []radio.Network{{SSID: "CasaLopez"}, {SSID: "CasaGarcia"}}}
	svc, _, _, cache := newAutoConnectFixture(t, r, a, b)

	cache.SaveConnectionSnapshot(manager.SnapshotLastSSID, &network.SessionSnapshot{SSID: "casagarcia"})

	got := svc.SelectCandidate(context.Background(), nearLocation, []*network.WiFiNetwork{a, b})
	require.NotNil(t, got)
	assert.Equal(t, "net-b", got.ID)
}

func TestSelectCandidatePrefersLowestLatency(t *testing.T) {
	a := homeNetwork("net-a", "owner-1", "CasaLopez")
	b := homeNetwork("net-b", "owner-2", "CasaGarcia")
	r := &fakeRadio{visible: []radio.Network{{SSID: "CasaLopez"}, {SSID: "CasaGarcia"}}}
	svc, _, _, cache := newAutoConnectFixture(t, r, a, b)

	cache.AddLatencySample("CasaLopez", 250)
	cache.AddLatencySample("CasaGarcia", 40)

	got := svc.SelectCandidate(context.Background(), nearLocation, []*network.WiFiNetwork{a, b})
	require.NotNil(t, got)
	assert.Equal(t, "net-b", got.ID)
}

func TestSelectCandidateFallsBackToNearest(t *testing.T) {
	near := homeNetwork("net-near", "owner-1", "CasaLopez")
	far := homeNetwork("net-far", "owner-2", "CasaGarcia")
	far.Latitude = -36.5 // ~60km away

	r := &fakeRadio{} // nothing scan-visible
	svc, _, _, _ := newAutoConnectFixture(t, r, near, far)

	got := svc.SelectCandidate(context.Background(), nearLocation, []*network.WiFiNetwork{far, near})
	require.NotNil(t, got)
	assert.Equal(t, "net-near", got.ID)
}

func TestReconcileClosesDroppedSessionOnce(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "Home")
	r := &fakeRadio{assoc: radio.Association{SSID: "OtherNet"}}
	svc, conns, logs, cache := newAutoConnectFixture(t, r, net)

	started := time.Now().UTC().Add(-10 * time.Minute)
	session := &network.ConnectionSession{
		ID: "sess-1", UserID: "user-1", NetworkID: "net-1", DeviceID: "device-1",
		ConnectionStart: started, Status: network.StatusActive,
	}
	require.NoError(t, conns.Create(session))
	cache.SaveConnectionSnapshot(manager.SnapshotActive, &network.SessionSnapshot{
		ID: "sess-1", NetworkID: "net-1", UserID: "user-1", SSID: "Home", StartedAt: started,
	})

	svc.Reconcile(context.Background())
	svc.Reconcile(context.Background()) // second tick while still disconnected

	stored, _ := conns.FindByID("sess-1")
	require.NotNil(t, stored)
	assert.Equal(t, network.StatusCompleted, stored.Status)
	require.NotNil(t, stored.DurationSeconds)
	assert.InDelta(t, 600, *stored.DurationSeconds, 2)

	disconnects := logs.byType(network.AccessDisconnected)
	require.Len(t, disconnects, 1, "disconnect fires once per transition, not per tick")
	assert.Equal(t, "wifi_disconnected", disconnects[0].ErrorMessage)

	assert.Nil(t, cache.ConnectionSnapshot(manager.SnapshotActive))
}

func TestReconcileSkipsWhileStillConnected(t *testing.T) {
	net := homeNetwork("net-1", "owner-1", "Home")
	r := &fakeRadio{assoc: radio.Association{SSID: "Home"}}
	svc, conns, logs, cache := newAutoConnectFixture(t, r, net)

	cache.SaveConnectionSnapshot(manager.SnapshotActive, &network.SessionSnapshot{
		ID: "sess-1", NetworkID: "net-1", UserID: "user-1", SSID: "Home", StartedAt: time.Now().UTC(),
	})

	svc.Reconcile(context.Background())

	assert.NotNil(t, cache.ConnectionSnapshot(manager.SnapshotActive))
	assert.Empty(t, logs.byType(network.AccessDisconnected))
	assert.Zero(t, conns.count())
}
