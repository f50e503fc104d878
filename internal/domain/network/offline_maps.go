package network

import "github.com/burned13/wifiemergencia/internal/domain/geo"

// DownloadStatus is the published progress of an offline map preparation run.
// Totals only move forward within a run; a new run resets them.
type DownloadStatus struct {
	InProgress bool `json:"inProgress"`
	Downloaded int  `json:"downloaded"`
	Failed     int  `json:"failed"`
	Total      int  `json:"total"`
}

// OfflineRegion describes the area covered by the cached tile set.
type OfflineRegion struct {
	Center   geo.Coordinate `json:"center"`
	RadiusKm float64        `json:"radiusKm"`
	Zooms    []int          `json:"zooms"`
}
