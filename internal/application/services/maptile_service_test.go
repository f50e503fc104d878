package services

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/tiles"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// richPayload is a tile body that passes the blank heuristic: 2500 bytes
// cycling through 200 distinct values.
func richPayload() []byte {
	payload := make([]byte, 2500)
	for i := range payload {
		payload[i] = byte(i % 200)
	}
	return payload
}

func blankPayload() []byte {
	return bytes.Repeat([]byte{0x42}, 2500)
}

func newMapService(t *testing.T, tileServerURL string) *MapTileService {
	t.Helper()
	s := NewMapTileService(newTestCache(t), tiles.NewClient(nil), nil, nil, nil)
	s.osmBaseURL = tileServerURL
	s.wikimediaBaseURL = tileServerURL
	return s
}

func TestIsProbablyBlank(t *testing.T) {
	assert.True(t, isProbablyBlank(blankPayload()), "uniform payload should read as blank")
	assert.False(t, isProbablyBlank(richPayload()), "varied payload should not read as blank")
	assert.True(t, isProbablyBlank([]byte("tiny")), "undersized payload should read as blank")
}

func TestFetchTilePersistsDataURI(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(richPayload())
	}))
	defer server.Close()

	s := newMapService(t, server.URL)
	key := geo.TileKey{Zoom: 14, X: 10, Y: 20}

	dataURI, ok := s.FetchTile(context.Background(), key)
	require.True(t, ok)
	assert.Contains(t, dataURI, "data:image/png;base64,")

	cached, ok := s.CachedTile(key)
	require.True(t, ok)
	assert.Equal(t, dataURI, cached)
}

func TestFetchTileSkipsBlankSource(t *testing.T) {
	blankServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(blankPayload())
	}))
	defer blankServer.Close()
	goodServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(richPayload())
	}))
	defer goodServer.Close()

	s := newMapService(t, blankServer.URL)
	s.wikimediaBaseURL = goodServer.URL

	_, ok := s.FetchTile(context.Background(), geo.TileKey{Zoom: 14, X: 1, Y: 1})
	assert.True(t, ok, "secondary source should rescue a blank primary")
}

func TestFetchTileLastChanceBypassesHeuristic(t *testing.T) {
	// Every source serves a payload the heuristic rejects; the final
	// unconditional attempt keeps it anyway.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(blankPayload())
	}))
	defer server.Close()

	s := newMapService(t, server.URL)

	dataURI, ok := s.FetchTile(context.Background(), geo.TileKey{Zoom: 14, X: 2, Y: 2})
	require.True(t, ok)
	assert.NotEmpty(t, dataURI)
}

func TestPrepareOfflineMapForcedFullRegion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(richPayload())
	}))
	defer server.Close()

	s := newMapService(t, server.URL)
	center := geo.Coordinate{Lat: -35.967, Lon: -62.734}
	zooms := []int{14, 15, 16}

	expectedTotal := 0
	square := geo.SquareAround(center, 3)
	for _, zoom := range zooms {
		expectedTotal += geo.TileCount(square, zoom)
	}

	result, err := s.PrepareOfflineMap(context.Background(), center, zooms, PrepareOptions{Force: true})
	require.NoError(t, err)

	assert.Equal(t, expectedTotal, result.Downloaded)
	assert.Zero(t, result.Failed)
	assert.InDelta(t, 3.0, result.RadiusKm, 0.001)

	status, ok := s.DownloadStatus()
	require.True(t, ok)
	assert.False(t, status.InProgress)
	assert.Equal(t, expectedTotal, status.Total)
	assert.Equal(t, expectedTotal, status.Downloaded+status.Failed)

	assert.True(t, s.TilesReady())

	region := s.Region()
	require.NotNil(t, region)
	assert.InDelta(t, 3.0, region.RadiusKm, 0.001)
	assert.Equal(t, zooms, region.Zooms)
}

func TestPrepareOfflineMapReachabilityGate(t *testing.T) {
	var tileRequests atomic.Int64
	tileServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tileRequests.Add(1)
		w.Write(richPayload())
	}))
	defer tileServer.Close()
	probeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer probeServer.Close()

	s := newMapService(t, tileServer.URL)
	s.probeURL = probeServer.URL

	center := geo.Coordinate{Lat: -35.967, Lon: -62.734, Accuracy: 500}
	result, err := s.PrepareOfflineMap(context.Background(), center, []int{15}, PrepareOptions{})
	require.NoError(t, err)

	assert.Zero(t, result.Downloaded)
	assert.Zero(t, result.Failed)
	assert.Zero(t, result.RadiusKm)
	assert.Zero(t, tileRequests.Load(), "gate failure must not fetch anything")
}

func TestPrepareOfflineMapAccuracyGate(t *testing.T) {
	probeServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer probeServer.Close()

	s := newMapService(t, probeServer.URL)
	s.probeURL = probeServer.URL

	// Reachable but the fix is too coarse.
	center := geo.Coordinate{Lat: -35.967, Lon: -62.734, Accuracy: 900}
	result, err := s.PrepareOfflineMap(context.Background(), center, []int{16}, PrepareOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Downloaded+result.Failed)

	// Zero accuracy means no fix at all, not a perfect one.
	center.Accuracy = 0
	result, err = s.PrepareOfflineMap(context.Background(), center, []int{16}, PrepareOptions{})
	require.NoError(t, err)
	assert.Zero(t, result.Downloaded+result.Failed)
}

func TestPrepareOfflineMapCountsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := newMapService(t, server.URL)
	center := geo.Coordinate{Lat: -35.967, Lon: -62.734}
	bbox := geo.SquareAround(center, 0.2)

	result, err := s.PrepareOfflineMap(context.Background(), center, []int{14}, PrepareOptions{Force: true, BBox: &bbox})
	require.NoError(t, err)

	total := geo.TileCount(bbox, 14)
	assert.Zero(t, result.Downloaded)
	assert.Equal(t, total, result.Failed)
	assert.False(t, s.TilesReady(), "nothing downloaded means not ready")
}
