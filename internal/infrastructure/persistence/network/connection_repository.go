// Package network provides the concrete SQL-based implementations of the
// wireless-network domain repositories (Connection, Network, AccessLog,
// ErrorReport).
package network

import (
	"database/sql"
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
)

// SQLConnectionRepository is the SQL-based implementation of the ConnectionRepository.
type SQLConnectionRepository struct {
	db *database.DB
}

// NewSQLConnectionRepository creates a new instance of the repository.
func NewSQLConnectionRepository(db *database.DB) *SQLConnectionRepository {
	return &SQLConnectionRepository{db: db}
}

const connectionColumns = `id, user_id, network_id, device_id, connection_start,
	connection_end, duration_seconds, data_used_mb, connection_status,
	user_latitude, user_longitude, signal_strength`

// FindByID retrieves a ConnectionSession by its unique identifier.
func (r *SQLConnectionRepository) FindByID(id string) (*network.ConnectionSession, error) {
	query := `SELECT ` + connectionColumns + ` FROM wifi_connections WHERE id = ?`

	row := r.db.QueryRow(query, id)
	return r.scanConnection(row)
}

// FindByUserID retrieves a user's most recent sessions, newest first.
func (r *SQLConnectionRepository) FindByUserID(userID string, limit int) ([]*network.ConnectionSession, error) {
	query := `SELECT ` + connectionColumns + `
		FROM wifi_connections
		WHERE user_id = ?
		ORDER BY connection_start DESC
		LIMIT ?`

	rows, err := r.db.Query(query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.collect(rows)
}

// FindActiveByNetworkID retrieves all sessions still marked active for a network.
func (r *SQLConnectionRepository) FindActiveByNetworkID(networkID string) ([]*network.ConnectionSession, error) {
	query := `SELECT ` + connectionColumns + `
		FROM wifi_connections
		WHERE network_id = ? AND connection_status = ?`

	rows, err := r.db.Query(query, networkID, network.StatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.collect(rows)
}

// Create saves a new ConnectionSession to the record store.
func (r *SQLConnectionRepository) Create(session *network.ConnectionSession) error {
	const query = `
		INSERT INTO wifi_connections (id, user_id, network_id, device_id,
			connection_start, data_used_mb, connection_status,
			user_latitude, user_longitude, signal_strength)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.Exec(
		query,
		session.ID,
		session.UserID,
		session.NetworkID,
		session.DeviceID,
		session.ConnectionStart.UTC().Format(time.RFC3339),
		session.DataUsedMB,
		session.Status,
		session.UserLatitude,
		session.UserLongitude,
		session.SignalStrength,
	)
	return err
}

// Terminate moves an active session to a terminal status with its end
// timestamp and duration. Rows already in a terminal state match nothing and
// stay as they are, so re-running the update is harmless.
func (r *SQLConnectionRepository) Terminate(id, status string, end time.Time, durationSeconds int64) error {
	const query = `
		UPDATE wifi_connections
		SET connection_end = ?, duration_seconds = ?, connection_status = ?
		WHERE id = ? AND connection_status = ?`

	_, err := r.db.Exec(query, end.UTC().Format(time.RFC3339), durationSeconds, status, id, network.StatusActive)
	return err
}

func (r *SQLConnectionRepository) collect(rows *sql.Rows) ([]*network.ConnectionSession, error) {
	var sessions []*network.ConnectionSession
	for rows.Next() {
		session, err := r.scanConnectionFromRows(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// scanConnection is a helper function to scan a sql.Row into a ConnectionSession.
func (r *SQLConnectionRepository) scanConnection(row *sql.Row) (*network.ConnectionSession, error) {
	var session network.ConnectionSession
	var startStr string
	var endStr sql.NullString
	var duration sql.NullInt64

	err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.NetworkID,
		&session.DeviceID,
		&startStr,
		&endStr,
		&duration,
		&session.DataUsedMB,
		&session.Status,
		&session.UserLatitude,
		&session.UserLongitude,
		&session.SignalStrength,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	return r.finishConnection(&session, startStr, endStr, duration)
}

// scanConnectionFromRows is a helper function to scan from sql.Rows.
func (r *SQLConnectionRepository) scanConnectionFromRows(rows *sql.Rows) (*network.ConnectionSession, error) {
	var session network.ConnectionSession
	var startStr string
	var endStr sql.NullString
	var duration sql.NullInt64

	err := rows.Scan(
		&session.ID,
		&session.UserID,
		&session.NetworkID,
		&session.DeviceID,
		&startStr,
		&endStr,
		&duration,
		&session.DataUsedMB,
		&session.Status,
		&session.UserLatitude,
		&session.UserLongitude,
		&session.SignalStrength,
	)
	if err != nil {
		return nil, err
	}

	return r.finishConnection(&session, startStr, endStr, duration)
}

func (r *SQLConnectionRepository) finishConnection(session *network.ConnectionSession, startStr string, endStr sql.NullString, duration sql.NullInt64) (*network.ConnectionSession, error) {
	var err error
	session.ConnectionStart, err = parseTimestamp(startStr)
	if err != nil {
		return nil, err
	}

	if endStr.Valid {
		end, err := parseTimestamp(endStr.String)
		if err != nil {
			return nil, err
		}
		session.ConnectionEnd = &end
	}

	if duration.Valid {
		d := duration.Int64
		session.DurationSeconds = &d
	}

	return session, nil
}

// parseTimestamp handles both RFC3339 and the plain SQL datetime format.
func parseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05", s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t, nil
}
