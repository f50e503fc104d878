// Package stores provides concrete cache store implementations
package stores

import (
	"database/sql"
	"time"

	"github.com/burned13/wifiemergencia/internal/infrastructure/observability/logging"
	_ "github.com/mattn/go-sqlite3"
)

// SQLiteKVStore is a single-table persistent key-value store backed by a
// local sqlite file. It survives process restarts, which is the whole point:
// tiles and snapshots must be there when connectivity is not.
type SQLiteKVStore struct {
	db     *sql.DB
	logger *logging.ChanneledLogger
}

// NewSQLiteKVStore opens (or creates) the cache file and ensures the schema.
func NewSQLiteKVStore(path string, logger *logging.ChanneledLogger) (*SQLiteKVStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	const schema = `CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value BLOB NOT NULL,
		updated_at TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	if logger != nil {
		logger.Cache().Info("Persistent KV store initialized", "path", path)
	}
	return &SQLiteKVStore{db: db, logger: logger}, nil
}

// Get retrieves a value by key. Any failure reads as a miss.
func (s *SQLiteKVStore) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if err != sql.ErrNoRows && s.logger != nil {
			s.logger.Cache().Error("KV read failed", "key", key, "error", err.Error())
		}
		return nil, false
	}
	return value, true
}

// Set upserts a value. Failures are logged and swallowed.
func (s *SQLiteKVStore) Set(key string, value []byte) {
	const query = `INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	_, err := s.db.Exec(query, key, value, time.Now().UTC().Format(time.RFC3339))
	if err != nil && s.logger != nil {
		s.logger.Cache().Error("KV write failed", "key", key, "error", err.Error())
	}
}

// Remove deletes a key. Removing an absent key is a no-op.
func (s *SQLiteKVStore) Remove(key string) {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	if err != nil && s.logger != nil {
		s.logger.Cache().Error("KV delete failed", "key", key, "error", err.Error())
	}
}

// ListKeys returns all keys with the given prefix.
func (s *SQLiteKVStore) ListKeys(prefix string) []string {
	rows, err := s.db.Query(`SELECT key FROM kv WHERE key LIKE ? || '%'`, prefix)
	if err != nil {
		if s.logger != nil {
			s.logger.Cache().Error("KV key listing failed", "prefix", prefix, "error", err.Error())
		}
		return nil
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			continue
		}
		keys = append(keys, key)
	}
	return keys
}

// Close releases the underlying database handle.
func (s *SQLiteKVStore) Close() error {
	return s.db.Close()
}
