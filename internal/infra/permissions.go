package infra

import (
	"os/exec"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// ErrNoSettingsCommand is returned when no command is configured for a settings screen.
var ErrNoSettingsCommand = errors.New("no settings command configured")

// DrawCheck reports whether overlays can currently be drawn.
type DrawCheck func() (bool, error)

// CommandRunner starts a command without waiting for it.
type CommandRunner func(name string, args ...string) error

// DesktopPermissionsConfig holds the commands that open the settings screens.
type DesktopPermissionsConfig struct {
	OverlaySettings       []string // e.g. ["xdg-open", "x-settings://display"]
	AccessibilitySettings []string // e.g. ["gnome-control-center", "universal-access"]
}

// DesktopPermissions implements domain.PermissionProvider for a desktop session.
// Drawing is permitted when the display accepts override-redirect windows.
type DesktopPermissions struct {
	config  DesktopPermissionsConfig
	canDraw DrawCheck
	run     CommandRunner
	logger  *zap.Logger
}

// NewDesktopPermissions creates a provider. A nil run starts real processes.
func NewDesktopPermissions(config DesktopPermissionsConfig, canDraw DrawCheck, run CommandRunner, logger *zap.Logger) *DesktopPermissions {
	if run == nil {
		run = startDetached
	}
	return &DesktopPermissions{
		config:  config,
		canDraw: canDraw,
		run:     run,
		logger:  logger,
	}
}

// CanDrawOverlays asks the display whether an overlay window can be created.
func (p *DesktopPermissions) CanDrawOverlays() (bool, error) {
	if p.canDraw == nil {
		return false, errors.New("no display check configured")
	}
	return p.canDraw()
}

// RequestOverlayPermission opens the overlay settings screen.
func (p *DesktopPermissions) RequestOverlayPermission() error {
	return p.open("overlay", p.config.OverlaySettings)
}

// OpenAccessibilitySettings opens the accessibility settings screen.
func (p *DesktopPermissions) OpenAccessibilitySettings() error {
	return p.open("accessibility", p.config.AccessibilitySettings)
}

func (p *DesktopPermissions) open(screen string, argv []string) error {
	if len(argv) == 0 || argv[0] == "" {
		return errors.Wrap(ErrNoSettingsCommand, screen)
	}
	if err := p.run(argv[0], argv[1:]...); err != nil {
		return errors.Wrapf(err, "failed to open %s settings", screen)
	}
	p.logger.Info("opened settings screen",
		zap.String("screen", screen),
		zap.Strings("command", argv))
	return nil
}

func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	// Reap in the background so the settings app never becomes a zombie.
	go func() { _ = cmd.Wait() }()
	return nil
}

// Ensure DesktopPermissions implements domain.PermissionProvider.
var _ domain.PermissionProvider = (*DesktopPermissions)(nil)
