package network

import (
	"database/sql"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
)

// SQLNetworkRepository is the SQL-based implementation of the NetworkRepository.
type SQLNetworkRepository struct {
	db *database.DB
}

// NewSQLNetworkRepository creates a new instance of the repository.
func NewSQLNetworkRepository(db *database.DB) *SQLNetworkRepository {
	return &SQLNetworkRepository{db: db}
}

const networkColumns = `id, owner_id, ssid, password_encrypted, latitude, longitude,
	network_type, security_protocol, max_concurrent_users, status, created_at`

// FindByID retrieves a WiFiNetwork by its unique identifier.
func (r *SQLNetworkRepository) FindByID(id string) (*network.WiFiNetwork, error) {
	query := `SELECT ` + networkColumns + ` FROM wifi_networks WHERE id = ?`

	row := r.db.QueryRow(query, id)
	return r.scanNetwork(row)
}

// FindByOwnerID retrieves an owner's networks, optionally filtered by type.
func (r *SQLNetworkRepository) FindByOwnerID(ownerID, networkType string) ([]*network.WiFiNetwork, error) {
	query := `SELECT ` + networkColumns + ` FROM wifi_networks WHERE owner_id = ?`
	args := []any{ownerID}
	if networkType != "" {
		query += ` AND network_type = ?`
		args = append(args, networkType)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var networks []*network.WiFiNetwork
	for rows.Next() {
		n, err := r.scanNetworkFromRows(rows)
		if err != nil {
			return nil, err
		}
		networks = append(networks, n)
	}
	return networks, rows.Err()
}

func (r *SQLNetworkRepository) scanNetwork(row *sql.Row) (*network.WiFiNetwork, error) {
	var n network.WiFiNetwork
	var password sql.NullString
	var createdAtStr string

	err := row.Scan(
		&n.ID,
		&n.OwnerID,
		&n.SSID,
		&password,
		&n.Latitude,
		&n.Longitude,
		&n.NetworkType,
		&n.SecurityProtocol,
		&n.MaxConcurrentUsers,
		&n.Status,
		&createdAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	return r.finishNetwork(&n, password, createdAtStr)
}

func (r *SQLNetworkRepository) scanNetworkFromRows(rows *sql.Rows) (*network.WiFiNetwork, error) {
	var n network.WiFiNetwork
	var password sql.NullString
	var createdAtStr string

	err := rows.Scan(
		&n.ID,
		&n.OwnerID,
		&n.SSID,
		&password,
		&n.Latitude,
		&n.Longitude,
		&n.NetworkType,
		&n.SecurityProtocol,
		&n.MaxConcurrentUsers,
		&n.Status,
		&createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	return r.finishNetwork(&n, password, createdAtStr)
}

func (r *SQLNetworkRepository) finishNetwork(n *network.WiFiNetwork, password sql.NullString, createdAtStr string) (*network.WiFiNetwork, error) {
	if password.Valid {
		n.PasswordEncrypted = password.String
	}

	createdAt, err := parseTimestamp(createdAtStr)
	if err != nil {
		return nil, err
	}
	n.CreatedAt = createdAt

	return n, nil
}
