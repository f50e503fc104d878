package network

import (
	"time"

	"github.com/burned13/wifiemergencia/internal/domain/network"
	"github.com/burned13/wifiemergencia/internal/infrastructure/persistence/database"
)

// SQLErrorReportRepository is the SQL-based implementation of the ErrorReportRepository.
type SQLErrorReportRepository struct {
	db *database.DB
}

// NewSQLErrorReportRepository creates a new instance of the repository.
func NewSQLErrorReportRepository(db *database.DB) *SQLErrorReportRepository {
	return &SQLErrorReportRepository{db: db}
}

// Create saves a new owner-visible failure report.
func (r *SQLErrorReportRepository) Create(report *network.ErrorReport) error {
	const query = `
		INSERT INTO network_error_reports (id, network_id, owner_id, user_id,
			failure_type, latitude, longitude, occurred_at, message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var ownerID any
	if report.OwnerID != "" {
		ownerID = report.OwnerID
	}
	var message any
	if report.Message != "" {
		message = report.Message
	}

	_, err := r.db.Exec(
		query,
		report.ID,
		report.NetworkID,
		ownerID,
		report.UserID,
		report.FailureType,
		report.Latitude,
		report.Longitude,
		report.OccurredAt.UTC().Format(time.RFC3339),
		message,
	)
	return err
}
