// Command tileprefetch downloads an offline tile set for a region from the
// command line, with a progress bar. Useful for seeding a device's cache
// before heading somewhere without connectivity.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/burned13/wifiemergencia/internal/application/services"
	"github.com/burned13/wifiemergencia/internal/domain/geo"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/manager"
	"github.com/burned13/wifiemergencia/internal/infrastructure/caching/stores"
	"github.com/burned13/wifiemergencia/internal/infrastructure/geocoding"
	"github.com/burned13/wifiemergencia/internal/infrastructure/tiles"
	"github.com/burned13/wifiemergencia/pkg/config"
	"github.com/schollz/progressbar/v3"
)

func main() {
	lat := flag.Float64("lat", 0, "center latitude")
	lon := flag.Float64("lon", 0, "center longitude")
	zoomsFlag := flag.String("zooms", "14,15,16", "comma-separated zoom levels")
	force := flag.Bool("force", false, "skip connectivity and accuracy gates")
	cachePath := flag.String("cache", config.CachePath, "path to the tile cache file")
	clear := flag.Bool("clear", false, "clear the cached tile set and exit")
	flag.Parse()

	store, err := stores.NewSQLiteKVStore(*cachePath, nil)
	if err != nil {
		log.Fatalf("Failed to open cache at %s: %v", *cachePath, err)
	}
	cache := manager.NewManager(store, nil)
	defer cache.Close()

	if *clear {
		cache.ClearMapTiles()
		fmt.Println("Tile cache cleared.")
		return
	}

	if err := geo.ValidateCoords(*lat, *lon); err != nil {
		log.Fatalf("Invalid center: %v", err)
	}
	zooms, err := parseZooms(*zoomsFlag)
	if err != nil {
		log.Fatalf("Invalid zooms: %v", err)
	}

	svc := services.NewMapTileService(cache, tiles.NewClient(nil), geocoding.NewNominatimClient(nil), nil, nil)
	center := geo.Coordinate{Lat: *lat, Lon: *lon, Accuracy: 10}

	done := make(chan services.PrepareResult, 1)
	go func() {
		result, err := svc.PrepareOfflineMap(context.Background(), center, zooms, services.PrepareOptions{Force: *force})
		if err != nil {
			log.Printf("Preparation stopped: %v", err)
		}
		done <- result
	}()

	result := trackProgress(svc, done)

	fmt.Printf("\nDone: %d downloaded, %d failed, radius %.1f km\n", result.Downloaded, result.Failed, result.RadiusKm)
	if result.Downloaded == 0 {
		os.Exit(1)
	}
}

// trackProgress polls the published download status and renders it until the
// run finishes.
func trackProgress(svc *services.MapTileService, done <-chan services.PrepareResult) services.PrepareResult {
	var bar *progressbar.ProgressBar
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case result := <-done:
			if bar != nil {
				bar.Finish()
			}
			return result
		case <-ticker.C:
			status, ok := svc.DownloadStatus()
			if !ok || status.Total == 0 {
				continue
			}
			if bar == nil {
				bar = progressbar.NewOptions(status.Total,
					progressbar.OptionSetDescription("Fetching tiles"),
					progressbar.OptionShowCount(),
					progressbar.OptionSetWidth(30),
				)
			}
			bar.Set(status.Downloaded + status.Failed)
		}
	}
}

func parseZooms(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	zooms := make([]int, 0, len(parts))
	for _, part := range parts {
		zoom, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad zoom %q", part)
		}
		if zoom < 0 || zoom > 19 {
			return nil, fmt.Errorf("zoom %d out of range", zoom)
		}
		zooms = append(zooms, zoom)
	}
	return zooms, nil
}
