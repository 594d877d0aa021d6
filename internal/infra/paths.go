package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

const (
	// AppName names the binary and its data directory.
	AppName = "applock"

	// EnvDataDir overrides the data directory.
	EnvDataDir = "APPLOCK_DATA_DIR"
)

// Paths holds the on-disk locations used by the daemon and the CLI.
type Paths struct {
	DataDir    string // Encrypted store, key file and server record
	ConfigFile string // Optional TOML configuration
	LogFile    string // Daemon log output
}

// DefaultPaths resolves paths from $APPLOCK_DATA_DIR, then $XDG_DATA_HOME,
// then ~/.local/share. Under sudo the invoking user's home is used.
func DefaultPaths() Paths {
	return PathsFor(DefaultDataDir())
}

// PathsFor returns the paths rooted at dataDir.
func PathsFor(dataDir string) Paths {
	return Paths{
		DataDir:    dataDir,
		ConfigFile: filepath.Join(dataDir, "config.toml"),
		LogFile:    filepath.Join(dataDir, AppName+".log"),
	}
}

// DefaultDataDir returns the data directory for the current user.
func DefaultDataDir() string {
	if dir := os.Getenv(EnvDataDir); dir != "" {
		return dir
	}
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" && os.Getenv("SUDO_USER") == "" {
		return filepath.Join(xdg, AppName)
	}
	return filepath.Join(RealUserHome(), ".local", "share", AppName)
}

// RealUserHome returns the real user's home directory, even when running under sudo.
// Under sudo, os.UserHomeDir() returns root's home, so SUDO_USER is consulted first.
func RealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
