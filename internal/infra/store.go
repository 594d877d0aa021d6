// Package infra implements infrastructure concerns (storage, processes, metrics, permissions).
package infra

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	sqlcipher "github.com/mutecomm/go-sqlcipher/v4"
	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Ensure sqlcipher driver is registered.
var _ = sqlcipher.ErrBusy

const storeDBName = "store.db"

// EncryptedStore implements domain.SecureStore on a SQLCipher database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if len(key) == 0 {
		return nil, errors.New("empty store key")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, errors.Wrap(err, "failed to create data directory")
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open encrypted database")
	}

	// A wrong key fails here or at the first statement.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to connect to encrypted database")
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to create tables")
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`)
	return err
}

// Get returns the value stored under key and whether it exists.
func (s *EncryptedStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "failed to read %q", key)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *EncryptedStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO kv (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, time.Now().Unix(),
	)
	return errors.Wrapf(err, "failed to write %q", key)
}

// Delete removes key. Deleting a missing key is not an error.
func (s *EncryptedStore) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return errors.Wrapf(err, "failed to delete %q", key)
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close closes the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// OpenStore opens the encrypted store in dataDir, generating the key file on first use.
func OpenStore(dataDir string) (*EncryptedStore, error) {
	key, err := EnsureKey(NewStoreKeyFile(dataDir))
	if err != nil {
		return nil, errors.Wrap(err, "failed to load store key")
	}
	return NewEncryptedStore(dataDir, key)
}

// Ensure EncryptedStore implements domain.SecureStore.
var _ domain.SecureStore = (*EncryptedStore)(nil)
