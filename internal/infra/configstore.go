// Package infra implements infrastructure concerns (storage, platform
// capabilities, process observation).
package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/yahdeeez/teenguard/internal/domain"
)

const (
	storeDBName = "teenguard.db"

	// The single fixed key the reporter configuration record lives under.
	configKey = "reporter_config"

	// TokenSecretKey is the secret slot holding the auth bearer token.
	TokenSecretKey = "auth_token"
)

// EncryptedStore implements domain.ConfigStore using a SQLCipher encrypted
// SQLite database. The monitored device keeps its configuration record and
// auth token here; nothing else is persisted locally.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store. The key is used
// as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	keyHex := hex.EncodeToString(key)

	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, keyHex)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	store := &EncryptedStore{db: db, dbPath: dbPath}
	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return store, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS secrets (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// GetConfig returns the stored reporter configuration, or nil if the record
// has not been written yet.
func (s *EncryptedStore) GetConfig() (*domain.ReporterConfig, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM config WHERE key = ?`, configKey).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg domain.ReporterConfig
	if err := json.Unmarshal([]byte(value), &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// SetConfig writes the reporter configuration record.
func (s *EncryptedStore) SetConfig(cfg domain.ReporterConfig) error {
	value, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO config (key, value, updated_at)
		VALUES (?, ?, ?)`,
		configKey, string(value), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// GetSecret retrieves a secret by key.
func (s *EncryptedStore) GetSecret(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM secrets WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("secret not found: %s", key)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	return value, nil
}

// SetSecret stores a secret.
func (s *EncryptedStore) SetSecret(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO secrets (key, value, created_at)
		VALUES (?, ?, ?)`,
		key, value, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}
	return nil
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	return s.db.Close()
}

// DBPath returns the database file path (for tests).
func (s *EncryptedStore) DBPath() string {
	return s.dbPath
}
