package daemon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// RecordKeeperConfig holds record keeper configuration.
type RecordKeeperConfig struct {
	CheckInterval time.Duration // How often to verify the server record
}

// DefaultRecordKeeperConfig returns default record keeper configuration.
func DefaultRecordKeeperConfig() RecordKeeperConfig {
	return RecordKeeperConfig{
		CheckInterval: 30 * time.Second,
	}
}

// RecordKeeper registers the server and restores its record if the file is
// deleted or taken over, so CLI invocations can always find the daemon.
type RecordKeeper struct {
	config   RecordKeeperConfig
	registry domain.ServerRegistry
	record   domain.ServerRecord
	logger   *zap.Logger
}

// NewRecordKeeper creates a keeper for record.
func NewRecordKeeper(config RecordKeeperConfig, registry domain.ServerRegistry, record domain.ServerRecord, logger *zap.Logger) *RecordKeeper {
	return &RecordKeeper{
		config:   config,
		registry: registry,
		record:   record,
		logger:   logger,
	}
}

// Run registers the record, then keeps it in place until ctx is canceled.
// The record is cleared on exit if it still belongs to this server.
func (k *RecordKeeper) Run(ctx context.Context) error {
	if err := k.registry.Register(k.record); err != nil {
		k.logger.Error("failed to register server", zap.Error(err))
		return err
	}

	k.logger.Info("server registered",
		zap.Int("pid", k.record.PID),
		zap.String("addr", k.record.Addr),
		zap.String("path", k.registry.Path()))

	ticker := time.NewTicker(k.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.release()
			return ctx.Err()

		case <-ticker.C:
			k.ensureRegistered()
		}
	}
}

// ensureRegistered restores a missing or foreign record.
func (k *RecordKeeper) ensureRegistered() {
	current, err := k.registry.Lookup()
	if err != nil {
		k.logger.Warn("failed to read server record", zap.Error(err))
	}
	if current != nil && current.PID == k.record.PID && current.Addr == k.record.Addr {
		return
	}

	k.logger.Info("server record missing or replaced, restoring...")
	if err := k.registry.Register(k.record); err != nil {
		k.logger.Error("failed to restore server record", zap.Error(err))
	}
}

func (k *RecordKeeper) release() {
	current, err := k.registry.Lookup()
	if err != nil || current == nil || current.PID != k.record.PID {
		return
	}
	if err := k.registry.Clear(); err != nil {
		k.logger.Warn("failed to clear server record", zap.Error(err))
	}
}
