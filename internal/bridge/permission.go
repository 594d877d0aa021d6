package bridge

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CheckOverlayPermission reports whether overlays may be drawn.
func (b *Bridge) CheckOverlayPermission() (ok bool) {
	defer b.guard("checkOverlayPermission", &ok)
	return b.canDraw()
}

// RequestOverlayPermission sends the user to the permission screen and waits
// for the outcome. Concurrent callers share one pending request. The request
// resolves when a later check finds the permission granted, or as denied
// after Config.PermissionRequestTimeout.
func (b *Bridge) RequestOverlayPermission(ctx context.Context) (ok bool) {
	defer b.guard("requestOverlayPermission", &ok)

	if b.canDraw() {
		return true
	}

	b.mu.Lock()
	req := b.request
	first := req == nil
	if first {
		req = &permissionRequest{done: make(chan struct{})}
		b.request = req
	}
	b.mu.Unlock()

	if first {
		if err := b.permissions.RequestOverlayPermission(); err != nil {
			b.logger.Warn("failed to open overlay permission screen", zap.Error(err))
			b.resolve(req, false)
			return false
		}
		b.logger.Info("overlay permission requested")
	}

	timer := time.NewTimer(b.config.PermissionRequestTimeout)
	defer timer.Stop()

	select {
	case <-req.done:
	case <-timer.C:
		b.resolve(req, b.canDraw())
		<-req.done
	case <-ctx.Done():
		return false
	}
	return req.granted
}

// ResolvePendingPermission settles a pending request if the permission has
// been granted since. It reports whether a request was resolved.
func (b *Bridge) ResolvePendingPermission() bool {
	b.mu.Lock()
	req := b.request
	b.mu.Unlock()

	if req == nil || !b.canDraw() {
		return false
	}
	return b.resolve(req, true)
}

// OpenAccessibilitySettings sends the user to the accessibility settings.
func (b *Bridge) OpenAccessibilitySettings() (ok bool) {
	defer b.guard("openAccessibilitySettings", &ok)

	if err := b.permissions.OpenAccessibilitySettings(); err != nil {
		b.logger.Warn("failed to open accessibility settings", zap.Error(err))
		return false
	}
	return true
}

func (b *Bridge) canDraw() bool {
	granted, err := b.permissions.CanDrawOverlays()
	if err != nil {
		b.logger.Warn("failed to check overlay permission", zap.Error(err))
		return false
	}
	return granted
}

// resolve completes req once; later calls for the same request do nothing.
func (b *Bridge) resolve(req *permissionRequest, granted bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.request != req {
		return false
	}
	b.request = nil
	req.granted = granted
	close(req.done)
	return true
}
