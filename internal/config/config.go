// Package config loads daemon and CLI configuration: defaults, then an
// optional TOML file, then APPLOCK_* environment overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"

	"github.com/eliteGoblin/focusd/app_lock/internal/bridge"
	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/infra"
	"github.com/eliteGoblin/focusd/app_lock/internal/logging"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/internal/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "APPLOCK"

// Config holds all application configuration.
type Config struct {
	Monitor MonitorConfig  `toml:"monitor" envconfig:"MONITOR"`
	Bridge  BridgeConfig   `toml:"bridge" envconfig:"BRIDGE"`
	Server  ServerConfig   `toml:"server" envconfig:"SERVER"`
	Storage StorageConfig  `toml:"storage" envconfig:"STORAGE"`
	Logging logging.Config `toml:"logging" envconfig:"LOG"`
	Display DisplayConfig  `toml:"display" envconfig:"DISPLAY"`
}

// MonitorConfig holds foreground monitor configuration.
type MonitorConfig struct {
	ShortDelay     time.Duration `toml:"short_delay" split_words:"true"`
	LongDelay      time.Duration `toml:"long_delay" split_words:"true"`
	VeryShortDelay time.Duration `toml:"very_short_delay" split_words:"true"`
	Repeats        int           `toml:"repeats" split_words:"true"`
	SpecialApps    []string      `toml:"special_apps" split_words:"true"`
	SelfID         string        `toml:"self_id" split_words:"true"`
}

// BridgeConfig holds command bridge configuration.
type BridgeConfig struct {
	StopTimeout             time.Duration `toml:"stop_timeout" split_words:"true"`
	PermissionTimeout       time.Duration `toml:"permission_timeout" split_words:"true"`
	PermissionCheckInterval time.Duration `toml:"permission_check_interval" split_words:"true"`
	RecordCheckInterval     time.Duration `toml:"record_check_interval" split_words:"true"`
}

// ServerConfig holds command server configuration.
type ServerConfig struct {
	Addr            string        `toml:"addr" split_words:"true"`
	RequestTimeout  time.Duration `toml:"request_timeout" split_words:"true"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout" split_words:"true"`
	Metrics         bool          `toml:"metrics" split_words:"true"`
}

// StorageConfig holds on-disk locations.
type StorageConfig struct {
	DataDir string `toml:"data_dir" split_words:"true"`
}

// DisplayConfig holds X11 and settings screen configuration.
type DisplayConfig struct {
	Name                  string   `toml:"name" split_words:"true"`
	OverlaySettings       []string `toml:"overlay_settings" split_words:"true"`
	AccessibilitySettings []string `toml:"accessibility_settings" split_words:"true"`
}

// Default returns default configuration.
func Default() *Config {
	timing := policy.DefaultTiming()
	unit := daemon.DefaultUnitConfig()
	br := bridge.DefaultConfig()
	srv := transport.DefaultConfig()
	paths := infra.DefaultPaths()

	return &Config{
		Monitor: MonitorConfig{
			ShortDelay:     timing.Short,
			LongDelay:      timing.Long,
			VeryShortDelay: timing.VeryShort,
			Repeats:        timing.Repeats,
			SpecialApps:    unit.SpecialApps,
			SelfID:         infra.AppName,
		},
		Bridge: BridgeConfig{
			StopTimeout:             br.StopTimeout,
			PermissionTimeout:       br.PermissionRequestTimeout,
			PermissionCheckInterval: daemon.DefaultPermissionWatcherConfig().CheckInterval,
			RecordCheckInterval:     daemon.DefaultRecordKeeperConfig().CheckInterval,
		},
		Server: ServerConfig{
			Addr:            srv.Addr,
			RequestTimeout:  srv.RequestTimeout,
			ShutdownTimeout: srv.ShutdownTimeout,
			Metrics:         true,
		},
		Storage: StorageConfig{
			DataDir: paths.DataDir,
		},
		Logging: logging.DefaultConfig(),
		Display: DisplayConfig{
			OverlaySettings:       []string{"xdg-open", "settings://display"},
			AccessibilitySettings: []string{"gnome-control-center", "universal-access"},
		},
	}
}

// Load builds the configuration from defaults, the TOML file at path and
// the environment. An empty path means <data dir>/config.toml; a missing
// file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = infra.PathsFor(cfg.Storage.DataDir).ConfigFile
	}
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	md, err := toml.DecodeFile(path, c)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("unknown keys in %s: %v", path, undecoded)
	}
	return nil
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if err := c.Timing().Validate(); err != nil {
		return err
	}
	if c.Bridge.StopTimeout <= 0 {
		return fmt.Errorf("bridge.stop_timeout must be positive, got %v", c.Bridge.StopTimeout)
	}
	if c.Bridge.PermissionTimeout <= 0 {
		return fmt.Errorf("bridge.permission_timeout must be positive, got %v", c.Bridge.PermissionTimeout)
	}
	if c.Bridge.PermissionCheckInterval <= 0 || c.Bridge.RecordCheckInterval <= 0 {
		return errors.New("bridge check intervals must be positive")
	}
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("server.addr %q: %w", c.Server.Addr, err)
	}
	if c.Server.RequestTimeout <= 0 || c.Server.ShutdownTimeout <= 0 {
		return errors.New("server timeouts must be positive")
	}
	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	return c.Logging.Validate()
}

// Timing returns the monitor timing policy.
func (c *Config) Timing() policy.Timing {
	return policy.Timing{
		Short:     c.Monitor.ShortDelay,
		Long:      c.Monitor.LongDelay,
		VeryShort: c.Monitor.VeryShortDelay,
		Repeats:   c.Monitor.Repeats,
	}
}

// UnitConfig returns the monitoring unit configuration.
func (c *Config) UnitConfig() daemon.UnitConfig {
	return daemon.UnitConfig{
		Timing:      c.Timing(),
		SpecialApps: c.Monitor.SpecialApps,
		SelfID:      c.Monitor.SelfID,
	}
}

// BridgeConfig returns the command bridge configuration.
func (c *Config) BridgeConfig() bridge.Config {
	return bridge.Config{
		StopTimeout:              c.Bridge.StopTimeout,
		PermissionRequestTimeout: c.Bridge.PermissionTimeout,
	}
}

// ServerConfig returns the command server configuration.
func (c *Config) ServerConfig() transport.Config {
	return transport.Config{
		Addr:            c.Server.Addr,
		RequestTimeout:  c.Server.RequestTimeout,
		ShutdownTimeout: c.Server.ShutdownTimeout,
	}
}

// Paths returns the on-disk locations under the configured data directory.
func (c *Config) Paths() infra.Paths {
	return infra.PathsFor(c.Storage.DataDir)
}

// PermissionsConfig returns the settings screen commands.
func (c *Config) PermissionsConfig() infra.DesktopPermissionsConfig {
	return infra.DesktopPermissionsConfig{
		OverlaySettings:       c.Display.OverlaySettings,
		AccessibilitySettings: c.Display.AccessibilitySettings,
	}
}
