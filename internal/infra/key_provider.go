package infra

import (
	"crypto/rand"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const (
	keyFileName = ".store.key"
	keySize     = 32 // SQLCipher raw key length

	// The key decrypts the unlock tag, so nobody but the owner may read it.
	keyFileMode os.FileMode = 0600
)

// StoreKeyFile holds the SQLCipher passphrase of the secure store in
// <data dir>/.store.key. Whoever can read it can read the unlock tag and
// rewrite the locked-app list, so it is written owner-only and rejected
// when its permissions have been widened.
type StoreKeyFile struct {
	path string
}

// NewStoreKeyFile returns the key file for the store in dataDir.
func NewStoreKeyFile(dataDir string) *StoreKeyFile {
	return &StoreKeyFile{path: filepath.Join(dataDir, keyFileName)}
}

// GetKey returns the store passphrase. Surrounding whitespace in the file is
// ignored so a hand-restored key still opens the store.
func (f *StoreKeyFile) GetKey() ([]byte, error) {
	info, err := os.Stat(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	if perm := info.Mode().Perm(); perm&^keyFileMode != 0 {
		return nil, errors.Errorf("key file %s is accessible by other users (mode %04o)", f.path, perm)
	}
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read key file")
	}
	return decodeStoreKey(strings.TrimSpace(string(raw)))
}

// StoreKey writes the passphrase, creating the data directory owner-only.
func (f *StoreKeyFile) StoreKey(key []byte) error {
	if err := checkKeySize(key); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.Wrap(err, "failed to create key directory")
	}
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(f.path, []byte(encoded), keyFileMode); err != nil {
		return errors.Wrap(err, "failed to write key file")
	}
	return nil
}

// KeyExists reports whether a passphrase was stored, valid or not.
func (f *StoreKeyFile) KeyExists() bool {
	_, err := os.Stat(f.path)
	return err == nil
}

func decodeStoreKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decode key")
	}
	if err := checkKeySize(key); err != nil {
		return nil, err
	}
	return key, nil
}

func checkKeySize(key []byte) error {
	if len(key) != keySize {
		return errors.Errorf("invalid key size: got %d, want %d", len(key), keySize)
	}
	return nil
}

// GenerateKey returns a fresh random store passphrase.
func GenerateKey() ([]byte, error) {
	key := make([]byte, keySize)
	if _, err := rand.Read(key); err != nil {
		return nil, errors.Wrap(err, "failed to generate random key")
	}
	return key, nil
}

// EnsureKey returns the stored passphrase. The first run of the daemon has
// none yet, so one is generated and stored before the store is created with it.
// A key file that exists but cannot be used is an error: replacing it would
// orphan the store encrypted with the old key.
func EnsureKey(provider domain.KeyProvider) ([]byte, error) {
	if provider.KeyExists() {
		return provider.GetKey()
	}
	key, err := GenerateKey()
	if err != nil {
		return nil, err
	}
	if err := provider.StoreKey(key); err != nil {
		return nil, err
	}
	return key, nil
}

var _ domain.KeyProvider = (*StoreKeyFile)(nil)
