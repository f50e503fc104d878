package network

import (
	"database/sql"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
)

// SQLAccessLogRepository is the SQL-based implementation of the AccessLogRepository.
type SQLAccessLogRepository struct {
	db *database.DB
}

// NewSQLAccessLogRepository creates a new instance of the repository.
func NewSQLAccessLogRepository(db *database.DB) *SQLAccessLogRepository {
	return &SQLAccessLogRepository{db: db}
}

// Create appends a new AccessEvent to the audit log.
func (r *SQLAccessLogRepository) Create(event *network.AccessEvent) error {
	const query = `
		INSERT INTO network_access_logs (id, network_id, user_id, access_type,
			latitude, longitude, timestamp, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	var errorMessage any
	if event.ErrorMessage != "" {
		errorMessage = event.ErrorMessage
	}

	_, err := r.db.Exec(
		query,
		event.ID,
		event.NetworkID,
		event.UserID,
		event.AccessType,
		event.Latitude,
		event.Longitude,
		event.Timestamp.UTC().Format(time.RFC3339),
		errorMessage,
	)
	return err
}

// FindByNetworkIDSince retrieves a network's access events newer than the
// given instant, newest first.
func (r *SQLAccessLogRepository) FindByNetworkIDSince(networkID string, since time.Time) ([]*network.AccessEvent, error) {
	const query = `
		SELECT id, network_id, user_id, access_type, latitude, longitude,
			timestamp, error_message
		FROM network_access_logs
		WHERE network_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC`

	rows, err := r.db.Query(query, networkID, since.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*network.AccessEvent
	for rows.Next() {
		event, err := r.scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

func (r *SQLAccessLogRepository) scanEvent(rows *sql.Rows) (*network.AccessEvent, error) {
	var event network.AccessEvent
	var tsStr string
	var errorMessage sql.NullString

	err := rows.Scan(
		&event.ID,
		&event.NetworkID,
		&event.UserID,
		&event.AccessType,
		&event.Latitude,
		&event.Longitude,
		&tsStr,
		&errorMessage,
	)
	if err != nil {
		return nil, err
	}

	event.Timestamp, err = parseTimestamp(tsStr)
	if err != nil {
		return nil, err
	}
	if errorMessage.Valid {
		event.ErrorMessage = errorMessage.String
	}

	return &event, nil
}
