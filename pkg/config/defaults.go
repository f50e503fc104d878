// Package config provides centralized default values for the wifi engine
package config

import (
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

var envLoaded sync.Once

func loadEnvFile() {
	envLoaded.Do(func() {
		if err := godotenv.Load(); err == nil {
			log.Println("Loading configuration overrides from .env file...")
		}
	})
}

func getEnvInt(key string, defaultValue int) int {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.Atoi(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%d (default: %d)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvString(key string, defaultValue string) string {
	if val := os.Getenv(key); val != "" {
		if val != defaultValue {
			log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
		}
		return val
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseBool(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%t (default: %t)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := strconv.ParseFloat(valStr, 64); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%f (default: %f)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valStr := os.Getenv(key); valStr != "" {
		if val, err := time.ParseDuration(valStr); err == nil {
			if val != defaultValue {
				log.Printf("Config override: %s=%s (default: %s)", key, val, defaultValue)
			}
			return val
		}
	}
	return defaultValue
}

var (
	// Server Configuration
	Port               string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	ServerIdleTimeout  time.Duration

	// Local cache (persistent key-value store)
	CachePath string

	// Remote record store
	DatabaseDriver string
	DatabaseURL    string

	// Tile sources
	TileOSMBaseURL                    string
	TileWikimediaBaseURL              string
	TileFetchTimeout                  time.Duration
	TileMirrorProbeTimeout            time.Duration
	TileBypassHeuristicOnFinalAttempt bool

	// Blank-tile heuristic
	BlankTileMinBytes       int
	BlankTileSampleBudget   int
	BlankTileDistinctFloor  int
	BlankTileDistinctAccept int

	// Offline region planning
	MaxLocationAccuracyMeters float64
	FallbackRegionSpanKm      float64
	MinRegionRadiusKm         float64

	// Reachability probe
	ReachabilityProbeURL     string
	ReachabilityProbeTimeout time.Duration

	// Geocoding
	NominatimBaseURL string
	GeocodeTimeout   time.Duration
	HTTPUserAgent    string

	// Connectivity sessions
	AutoConnectRadiusKm       float64
	SessionTimeoutMinutes     int
	ReconcileInterval         time.Duration
	LocationWatchInterval     time.Duration
	DefaultMaxConcurrent      int
	CredentialEncryptionKey   string
	LatencySampleCountCeiling int

	// Identity of the device this engine instance runs on
	DeviceUserID string
	DeviceID     string
)

func init() {
	loadEnvFile()

	// Server Configuration
	Port = getEnvString("PORT", "8099")
	ServerReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", 15*time.Second)
	ServerWriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", 15*time.Second)
	ServerIdleTimeout = getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second)

	// Storage
	CachePath = getEnvString("CACHE_PATH", "wifiemergencia-cache.db")
	DatabaseDriver = getEnvString("DATABASE_DRIVER", "libsql")
	DatabaseURL = getEnvString("DATABASE_URL", "")

	// Tile sources
	TileOSMBaseURL = getEnvString("TILE_OSM_BASE_URL", "https://tile.openstreetmap.org")
	TileWikimediaBaseURL = getEnvString("TILE_WIKIMEDIA_BASE_URL", "https://maps.wikimedia.org/osm-intl")
	TileFetchTimeout = getEnvDuration("TILE_FETCH_TIMEOUT", 15*time.Second)
	TileMirrorProbeTimeout = getEnvDuration("TILE_MIRROR_PROBE_TIMEOUT", 1500*time.Millisecond)
	TileBypassHeuristicOnFinalAttempt = getEnvBool("TILE_BYPASS_HEURISTIC_ON_FINAL_ATTEMPT", true)

	// Blank-tile heuristic
	BlankTileMinBytes = getEnvInt("BLANK_TILE_MIN_BYTES", 2000)
	BlankTileSampleBudget = getEnvInt("BLANK_TILE_SAMPLE_BUDGET", 2048)
	BlankTileDistinctFloor = getEnvInt("BLANK_TILE_DISTINCT_FLOOR", 16)
	BlankTileDistinctAccept = getEnvInt("BLANK_TILE_DISTINCT_ACCEPT", 64)

	// Offline region planning
	MaxLocationAccuracyMeters = getEnvFloat("MAX_LOCATION_ACCURACY_METERS", 200)
	FallbackRegionSpanKm = getEnvFloat("FALLBACK_REGION_SPAN_KM", 3)
	MinRegionRadiusKm = getEnvFloat("MIN_REGION_RADIUS_KM", 3)

	// Reachability probe
	ReachabilityProbeURL = getEnvString("REACHABILITY_PROBE_URL", "https://www.google.com/generate_204")
	ReachabilityProbeTimeout = getEnvDuration("REACHABILITY_PROBE_TIMEOUT", 5*time.Second)

	// Geocoding
	NominatimBaseURL = getEnvString("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")
	GeocodeTimeout = getEnvDuration("GEOCODE_TIMEOUT", 10*time.Second)
	HTTPUserAgent = getEnvString("HTTP_USER_AGENT", "wifiemergencia/1.0")

	// Connectivity sessions
	AutoConnectRadiusKm = getEnvFloat("AUTO_CONNECT_RADIUS_KM", 0.12)
	SessionTimeoutMinutes = getEnvInt("SESSION_TIMEOUT_MINUTES", 60)
	ReconcileInterval = getEnvDuration("RECONCILE_INTERVAL", 15*time.Second)
	LocationWatchInterval = getEnvDuration("LOCATION_WATCH_INTERVAL", 5*time.Second)
	DefaultMaxConcurrent = getEnvInt("DEFAULT_MAX_CONCURRENT_USERS", 3)
	CredentialEncryptionKey = getEnvString("CREDENTIAL_ENCRYPTION_KEY", "")
	LatencySampleCountCeiling = getEnvInt("LATENCY_SAMPLE_COUNT_CEILING", 1000)

	// Identity of the device this engine instance runs on
	DeviceUserID = getEnvString("DEVICE_USER_ID", "")
	DeviceID = getEnvString("DEVICE_ID", "")
}
