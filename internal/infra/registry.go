package infra

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const serverRecordName = ".server.json"

// FileRegistry implements domain.ServerRegistry using a hidden JSON file in the data directory.
type FileRegistry struct {
	path           string
	processManager domain.ProcessManager
}

// NewFileRegistry creates a registry in dataDir.
func NewFileRegistry(dataDir string, pm domain.ProcessManager) *FileRegistry {
	return NewFileRegistryWithPath(filepath.Join(dataDir, serverRecordName), pm)
}

// NewFileRegistryWithPath creates a registry at a specific path (for testing).
func NewFileRegistryWithPath(path string, pm domain.ProcessManager) *FileRegistry {
	return &FileRegistry{
		path:           path,
		processManager: pm,
	}
}

// Path returns the record file path.
func (r *FileRegistry) Path() string {
	return r.path
}

// Register replaces the record under an exclusive file lock.
func (r *FileRegistry) Register(rec domain.ServerRecord) error {
	if rec.PID <= 0 {
		return errors.Errorf("invalid server pid %d", rec.PID)
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0700); err != nil {
		return errors.Wrap(err, "failed to create registry directory")
	}

	// The lock serializes a restarting server against the record keeper of the old one.
	lockFile, err := os.OpenFile(r.path+".lock", os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return errors.Wrap(err, "failed to open lock file")
	}
	defer lockFile.Close()

	if err := syscall.Flock(int(lockFile.Fd()), syscall.LOCK_EX); err != nil {
		return errors.Wrap(err, "failed to acquire lock")
	}
	defer func() { _ = syscall.Flock(int(lockFile.Fd()), syscall.LOCK_UN) }()

	return r.atomicWrite(rec)
}

// Lookup returns the current record, or nil when none is registered.
func (r *FileRegistry) Lookup() (*domain.ServerRecord, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to read server record")
	}

	var rec domain.ServerRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "corrupt server record")
	}
	return &rec, nil
}

// IsAlive reports whether the registered PID is running.
func (r *FileRegistry) IsAlive() (bool, error) {
	rec, err := r.Lookup()
	if err != nil || rec == nil {
		return false, err
	}
	return r.processManager.IsRunning(rec.PID), nil
}

// Clear removes the record file. A missing file is not an error.
func (r *FileRegistry) Clear() error {
	if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "failed to remove server record")
	}
	return nil
}

// atomicWrite writes the record to a temp file and renames it into place.
func (r *FileRegistry) atomicWrite(rec domain.ServerRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tmpPath := fmt.Sprintf("%s.%d.tmp", r.path, os.Getpid())
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return errors.Wrap(err, "failed to write server record")
	}
	if err := os.Rename(tmpPath, r.path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, "failed to replace server record")
	}
	return nil
}

// Ensure FileRegistry implements domain.ServerRegistry.
var _ domain.ServerRegistry = (*FileRegistry)(nil)
