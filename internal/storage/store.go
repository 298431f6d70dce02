// Package storage provides the durable local key-value store shared by the
// event history cache and the sync queue.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/haoluo19990806-dev/Dailymedsapp-sub000/internal/crypto"
)

// Key families for persisted state. The history snapshot and the last-sync
// watermark are namespaced per user; the sync queue is a single device-level
// key.
const (
	historyKeyPrefix  = "offline_history_"
	lastSyncKeyPrefix = "last_sync_time_"

	// QueueKey holds the serialized sync task list.
	QueueKey = "sync_queue"
)

// HistoryKey returns the storage key for a user's history snapshot.
func HistoryKey(userID string) string {
	return historyKeyPrefix + userID
}

// LastSyncKey returns the storage key for a user's last-sync watermark.
func LastSyncKey(userID string) string {
	return lastSyncKeyPrefix + userID
}

// Store wraps a SQLite database used as a JSON key-value cache. Stored
// values hold health data, so an optional at-rest encryption key can be
// supplied at Open time.
type Store struct {
	db  *sql.DB
	key []byte // nil means values are stored in the clear
}

// Option configures a Store at Open time.
type Option func(*Store)

// WithEncryptionKey enables AES-256-GCM encryption of stored values. An
// empty key leaves the store unencrypted.
func WithEncryptionKey(key []byte) Option {
	return func(s *Store) {
		if len(key) > 0 {
			s.key = key
		}
	}
}

// Open opens the local store under dataDir, creating the directory and the
// schema as needed. The database is opened with WAL mode and a single writer
// connection.
func Open(dataDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "dailymeds.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite doesn't support multiple writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS kv_cache (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	store := &Store{db: db}
	for _, opt := range opts {
		opt(store)
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the raw value stored under key. The second return value is
// false when the key is absent.
func (s *Store) Get(key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM kv_cache WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, err)
	}
	if s.key != nil {
		plaintext, err := crypto.Decrypt(value, s.key)
		if err == nil {
			return plaintext, true, nil
		}
		// Rows written before encryption was enabled are stored in the
		// clear; hand them back as-is.
		if err != crypto.ErrInvalidCiphertext {
			return nil, false, fmt.Errorf("decrypt %q: %w", key, err)
		}
	}
	return []byte(value), true, nil
}

// Put stores value under key, overwriting any previous value. Last writer
// wins at the key level.
func (s *Store) Put(key string, value []byte, updatedAt int64) error {
	if s.key != nil {
		ciphertext, err := crypto.Encrypt(value, s.key)
		if err != nil {
			return fmt.Errorf("encrypt %q: %w", key, err)
		}
		value = []byte(ciphertext)
	}
	_, err := s.db.Exec(`
	INSERT INTO kv_cache (key, value, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(value), updatedAt)
	if err != nil {
		return fmt.Errorf("put %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(key string) error {
	if _, err := s.db.Exec("DELETE FROM kv_cache WHERE key = ?", key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// GetJSON unmarshals the value stored under key into dest. Returns false
// without touching dest when the key is absent.
func (s *Store) GetJSON(key string, dest interface{}) (bool, error) {
	data, ok, err := s.Get(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

// PutJSON marshals value and stores it under key.
func (s *Store) PutJSON(key string, value interface{}, updatedAt int64) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	return s.Put(key, data, updatedAt)
}
