// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// FakeDesktop stands in for the OS: a scriptable focus source and a window
// manager that tracks whether the overlay is attached.
type FakeDesktop struct {
	events chan domain.FocusEvent

	mu       sync.Mutex
	started  bool
	stopped  bool
	attached bool
	adds     int
	removes  int
}

// FakeContent is the overlay content built by FakeDesktop.
type FakeContent struct{}

// Describe implements domain.OverlayContent.
func (FakeContent) Describe() string { return "fake overlay" }

// NewFakeDesktop creates a desktop with nothing focused.
func NewFakeDesktop() *FakeDesktop {
	return &FakeDesktop{events: make(chan domain.FocusEvent, 32)}
}

// Focus brings app to the foreground.
func (d *FakeDesktop) Focus(app string) {
	d.events <- domain.FocusEvent{Kind: domain.EventWindowStateChanged, Package: app, At: time.Now()}
}

// Repaint sends a content change for app, which must not move the overlay.
func (d *FakeDesktop) Repaint(app string) {
	d.events <- domain.FocusEvent{Kind: domain.EventWindowContentChanged, Package: app, At: time.Now()}
}

// Attached reports whether the overlay is on screen.
func (d *FakeDesktop) Attached() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attached
}

// Adds returns how many times the overlay was attached.
func (d *FakeDesktop) Adds() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.adds
}

// Stopped reports whether the focus source was released.
func (d *FakeDesktop) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Start implements domain.FocusSource.
func (d *FakeDesktop) Start(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("already started")
	}
	d.started = true
	return nil
}

// Events implements domain.FocusSource.
func (d *FakeDesktop) Events() <-chan domain.FocusEvent { return d.events }

// Stop implements domain.FocusSource.
func (d *FakeDesktop) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

// Available implements domain.FocusSource.
func (d *FakeDesktop) Available() (bool, string) { return true, "" }

// NewOverlayContent implements domain.ContentFactory.
func (d *FakeDesktop) NewOverlayContent() (domain.OverlayContent, error) {
	return FakeContent{}, nil
}

// AddOverlay implements domain.WindowManager.
func (d *FakeDesktop) AddOverlay(domain.OverlayContent, domain.LayoutParams) domain.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.attached {
		return domain.Failure(domain.ReasonAlreadyAttached, nil)
	}
	d.attached = true
	d.adds++
	return domain.Success
}

// RemoveOverlay implements domain.WindowManager.
func (d *FakeDesktop) RemoveOverlay(domain.OverlayContent) domain.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.attached {
		return domain.Failure(domain.ReasonNotAttached, nil)
	}
	d.attached = false
	d.removes++
	return domain.Success
}

// FakePermissions grants or denies the overlay permission on demand.
type FakePermissions struct {
	mu      sync.Mutex
	granted bool
}

// Grant flips the permission.
func (p *FakePermissions) Grant(granted bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.granted = granted
}

// CanDrawOverlays implements domain.PermissionProvider.
func (p *FakePermissions) CanDrawOverlays() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.granted, nil
}

// RequestOverlayPermission implements domain.PermissionProvider.
func (p *FakePermissions) RequestOverlayPermission() error { return nil }

// OpenAccessibilitySettings implements domain.PermissionProvider.
func (p *FakePermissions) OpenAccessibilitySettings() error { return nil }
