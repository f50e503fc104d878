// Package network defines the wireless-network domain entities and the
// interfaces for accessing them in the remote record store. The repositories
// abstract persistence details so the engine services stay decoupled from the
// database. Note: the active-session snapshot lives in the cache layer, not
// persistence.
package network

import "time"

// Session status values. Active is the only non-terminal status.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusTimeout   = "timeout"
)

// Access event types, append-only audit vocabulary.
const (
	AccessSuccessful    = "successful"
	AccessFailedAuth    = "failed_auth"
	AccessTimeout       = "timeout"
	AccessDisconnected  = "disconnected"
	AccessLimitExceeded = "limit_exceeded"
)

// Network types.
const (
	TypeHome     = "home"
	TypeBusiness = "business"
	TypePublic   = "public"
)

// WiFiNetwork represents a registered shared network.
type WiFiNetwork struct {
	ID                 string    `json:"id"`
	OwnerID            string    `json:"ownerId"`
	SSID               string    `json:"ssid"`
	PasswordEncrypted  string    `json:"-"` // Never serialize credentials
	Latitude           float64   `json:"latitude"`
	Longitude          float64   `json:"longitude"`
	NetworkType        string    `json:"networkType"`
	SecurityProtocol   string    `json:"securityProtocol"`
	MaxConcurrentUsers int       `json:"maxConcurrentUsers"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
}

// ConnectionSession represents one continuous association between a device
// and a network, bounded by start and end/timeout. Exactly one row per
// connection attempt; terminal statuses are immutable.
type ConnectionSession struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	NetworkID       string     `json:"networkId"`
	DeviceID        string     `json:"deviceId"`
	ConnectionStart time.Time  `json:"connectionStart"`
	ConnectionEnd   *time.Time `json:"connectionEnd,omitempty"`
	DurationSeconds *int64     `json:"durationSeconds,omitempty"`
	DataUsedMB      float64    `json:"dataUsedMb"`
	Status          string     `json:"status"`
	UserLatitude    float64    `json:"userLatitude"`
	UserLongitude   float64    `json:"userLongitude"`
	SignalStrength  int        `json:"signalStrength"`
}

// AccessEvent is one append-only audit record per connection attempt outcome.
type AccessEvent struct {
	ID           string    `json:"id"`
	NetworkID    string    `json:"networkId"`
	UserID       string    `json:"userId"`
	AccessType   string    `json:"accessType"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Timestamp    time.Time `json:"timestamp"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
}

// ErrorReport is an owner-visible failure report for a home network.
type ErrorReport struct {
	ID          string    `json:"id"`
	NetworkID   string    `json:"networkId"`
	OwnerID     string    `json:"ownerId,omitempty"`
	UserID      string    `json:"userId"`
	FailureType string    `json:"failureType"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	OccurredAt  time.Time `json:"occurredAt"`
	Message     string    `json:"message,omitempty"`
}

// SessionSnapshot is the locally cached view of the active session, used to
// reconcile against observed device state when the remote store is
// unreachable or the radio drops silently.
type SessionSnapshot struct {
	ID        string    `json:"id"`
	NetworkID string    `json:"networkId"`
	UserID    string    `json:"userId"`
	SSID      string    `json:"ssid"`
	StartedAt time.Time `json:"startedAt"`
}

// LatencyStat is the per-SSID latency accumulator kept in the local cache.
type LatencyStat struct {
	Avg   float64 `json:"avg"`
	Count int     `json:"count"`
	Last  float64 `json:"last"`
}

// WifiDiagnostics is a best-effort view of the current radio association.
type WifiDiagnostics struct {
	Enabled   *bool  `json:"isWifiEnabled,omitempty"`
	SSID      string `json:"ssid,omitempty"`
	IP        string `json:"ip,omitempty"`
	Connected bool   `json:"connected"`
	Err       string `json:"error,omitempty"`
}

// ReachabilityResult is the outcome of an internet reachability probe.
type ReachabilityResult struct {
	Reachable bool   `json:"reachable"`
	LatencyMs int64  `json:"latencyMs"`
	Err       string `json:"error,omitempty"`
}

// ConnectionLimit is the result of comparing active sessions against a
// network's configured ceiling.
type ConnectionLimit struct {
	CanConnect  bool   `json:"canConnect"`
	ActiveCount int    `json:"activeCount"`
	MaxUsers    int    `json:"maxUsers"`
	Err         string `json:"error,omitempty"`
}

// FailureSummaryItem aggregates recent access history for one owned network.
type FailureSummaryItem struct {
	Network          *WiFiNetwork `json:"network"`
	LastFailureAt    *time.Time   `json:"lastFailureAt,omitempty"`
	LastSuccessAt    *time.Time   `json:"lastSuccessAt,omitempty"`
	Failures72hApart bool         `json:"failures72hApart"`
}

// ConnectionRepository defines operations for persisting ConnectionSession rows.
type ConnectionRepository interface {
	FindByID(id string) (*ConnectionSession, error)
	FindByUserID(userID string, limit int) ([]*ConnectionSession, error)
	FindActiveByNetworkID(networkID string) ([]*ConnectionSession, error)
	Create(session *ConnectionSession) error
	// Terminate moves an active session to a terminal status. Rows already
	// terminal are left untouched.
	Terminate(id, status string, end time.Time, durationSeconds int64) error
}

// NetworkRepository defines operations for reading WiFiNetwork rows.
type NetworkRepository interface {
	FindByID(id string) (*WiFiNetwork, error)
	FindByOwnerID(ownerID, networkType string) ([]*WiFiNetwork, error)
}

// AccessLogRepository defines operations for the append-only access log.
type AccessLogRepository interface {
	Create(event *AccessEvent) error
	FindByNetworkIDSince(networkID string, since time.Time) ([]*AccessEvent, error)
}

// ErrorReportRepository defines operations for owner-visible failure reports.
type ErrorReportRepository interface {
	Create(report *ErrorReport) error
}
