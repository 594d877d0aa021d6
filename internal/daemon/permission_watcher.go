package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// PermissionResolver settles an overlay permission request the user left
// without answering. It reports whether a pending request was resolved.
type PermissionResolver interface {
	ResolvePendingPermission() bool
}

// PermissionWatcherConfig holds permission watcher configuration.
type PermissionWatcherConfig struct {
	CheckInterval time.Duration // How often to re-check a pending request
}

// DefaultPermissionWatcherConfig returns default permission watcher configuration.
func DefaultPermissionWatcherConfig() PermissionWatcherConfig {
	return PermissionWatcherConfig{
		CheckInterval: 2 * time.Second,
	}
}

// PermissionWatcher periodically re-checks the overlay permission while a
// request is pending, standing in for the resume callback of the UI.
type PermissionWatcher struct {
	config   PermissionWatcherConfig
	resolver PermissionResolver
	logger   *zap.Logger
}

// NewPermissionWatcher creates a new permission watcher.
func NewPermissionWatcher(config PermissionWatcherConfig, resolver PermissionResolver, logger *zap.Logger) *PermissionWatcher {
	return &PermissionWatcher{
		config:   config,
		resolver: resolver,
		logger:   logger,
	}
}

// Run starts the watcher loop.
// This blocks until context is canceled.
func (w *PermissionWatcher) Run(ctx context.Context) error {
	w.logger.Debug("permission watcher started",
		zap.Duration("interval", w.config.CheckInterval))

	ticker := time.NewTicker(w.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("permission watcher stopping")
			return ctx.Err()

		case <-ticker.C:
			if w.resolver.ResolvePendingPermission() {
				w.logger.Info("pending overlay permission request resolved")
			}
		}
	}
}
