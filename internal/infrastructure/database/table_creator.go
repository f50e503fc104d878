// Package database provides remote record store schema instantiation
package database

import (
	"database/sql"
	"fmt"
)

// TableCreator handles the creation of the record store schema.
type TableCreator struct{}

// NewTableCreator creates a new TableCreator.
func NewTableCreator() *TableCreator {
	return &TableCreator{}
}

// CreateSchema executes all necessary queries to build the tables and indexes.
// Every statement is idempotent.
func (tc *TableCreator) CreateSchema(db *sql.DB) error {
	for _, tableSQL := range tables {
		if _, err := db.Exec(tableSQL); err != nil {
			return fmt.Errorf("failed to create table for query [%s]: %w", tableSQL, err)
		}
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			return fmt.Errorf("failed to create index for query [%s]: %w", indexSQL, err)
		}
	}
	return nil
}

var tables = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		display_name TEXT,
		device_id TEXT,
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS wifi_networks (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		ssid TEXT NOT NULL,
		password_encrypted TEXT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		network_type TEXT NOT NULL DEFAULT 'home',
		security_protocol TEXT NOT NULL DEFAULT 'WPA2',
		max_concurrent_users INTEGER NOT NULL DEFAULT 3,
		status TEXT NOT NULL DEFAULT 'active',
		created_at TEXT NOT NULL,
		FOREIGN KEY (owner_id) REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS wifi_connections (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		network_id TEXT NOT NULL,
		device_id TEXT NOT NULL,
		connection_start TEXT NOT NULL,
		connection_end TEXT,
		duration_seconds INTEGER,
		data_used_mb REAL NOT NULL DEFAULT 0,
		connection_status TEXT NOT NULL DEFAULT 'active',
		user_latitude REAL NOT NULL DEFAULT 0,
		user_longitude REAL NOT NULL DEFAULT 0,
		signal_strength INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (network_id) REFERENCES wifi_networks(id)
	)`,
	`CREATE TABLE IF NOT EXISTS network_access_logs (
		id TEXT PRIMARY KEY,
		network_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		access_type TEXT NOT NULL,
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		timestamp TEXT NOT NULL,
		error_message TEXT,
		FOREIGN KEY (network_id) REFERENCES wifi_networks(id)
	)`,
	`CREATE TABLE IF NOT EXISTS network_error_reports (
		id TEXT PRIMARY KEY,
		network_id TEXT NOT NULL,
		owner_id TEXT,
		user_id TEXT NOT NULL,
		failure_type TEXT NOT NULL,
		latitude REAL NOT NULL DEFAULT 0,
		longitude REAL NOT NULL DEFAULT 0,
		occurred_at TEXT NOT NULL,
		message TEXT,
		FOREIGN KEY (network_id) REFERENCES wifi_networks(id)
	)`,
	`CREATE TABLE IF NOT EXISTS user_subscriptions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		plan TEXT NOT NULL,
		started_at TEXT NOT NULL,
		expires_at TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS payment_transactions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subscription_id TEXT,
		amount REAL NOT NULL,
		currency TEXT NOT NULL DEFAULT 'ARS',
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
}

var indexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_wifi_networks_owner ON wifi_networks(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_wifi_connections_user ON wifi_connections(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_wifi_connections_network_status ON wifi_connections(network_id, connection_status)`,
	`CREATE INDEX IF NOT EXISTS idx_access_logs_network_ts ON network_access_logs(network_id, timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_error_reports_owner ON network_error_reports(owner_id)`,
}
