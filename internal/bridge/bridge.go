// Package bridge is the narrow command surface through which the UI updates
// the locked packages, starts and stops monitoring, and asks for permissions.
// Every operation reports success as a boolean and never panics.
package bridge

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/daemon"
	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

// Runner is a monitoring unit as seen by the bridge.
type Runner interface {
	Run(ctx context.Context) error
	Snapshot(ctx context.Context) (daemon.UnitSnapshot, error)
}

// UnitFactory builds a monitoring unit over locked.
type UnitFactory func(locked *usecase.LockedSet) (Runner, error)

// Verifier checks unlock tags.
type Verifier interface {
	Verify(tag string) (bool, error)
}

// SelectionStore persists the locked-package selection.
type SelectionStore interface {
	LoadLockedPackages() ([]string, error)
	SaveLockedPackages(ids []string) error
}

// Config holds bridge configuration.
type Config struct {
	StopTimeout              time.Duration // How long Stop waits for the unit to exit
	PermissionRequestTimeout time.Duration // How long an unanswered request stays pending
}

// DefaultConfig returns default bridge configuration.
func DefaultConfig() Config {
	return Config{
		StopTimeout:              3 * time.Second,
		PermissionRequestTimeout: 2 * time.Minute,
	}
}

// Status describes the bridge for status queries.
type Status struct {
	Running   bool
	Selection []string
	Unit      *daemon.UnitSnapshot
}

type session struct {
	unit   Runner
	locked *usecase.LockedSet
	cancel context.CancelFunc
	done   chan struct{}
}

type permissionRequest struct {
	done    chan struct{}
	granted bool
}

// Bridge owns the current selection and at most one running monitoring unit.
type Bridge struct {
	config      Config
	newUnit     UnitFactory
	permissions domain.PermissionProvider
	verifier    Verifier
	store       SelectionStore
	logger      *zap.Logger

	mu        sync.Mutex
	selection []string
	active    *session
	stopping  *session // stopped but not yet exited
	request   *permissionRequest
}

// Option configures optional bridge collaborators.
type Option func(*Bridge)

// WithVerifier enables Unlock.
func WithVerifier(v Verifier) Option {
	return func(b *Bridge) { b.verifier = v }
}

// WithSelectionStore persists every selection change.
func WithSelectionStore(s SelectionStore) Option {
	return func(b *Bridge) { b.store = s }
}

// New creates a bridge with an empty selection and no running unit.
func New(config Config, newUnit UnitFactory, permissions domain.PermissionProvider, logger *zap.Logger, opts ...Option) *Bridge {
	b := &Bridge{
		config:      config,
		newUnit:     newUnit,
		permissions: permissions,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Restore loads the persisted selection.
func (b *Bridge) Restore() error {
	if b.store == nil {
		return nil
	}
	ids, err := b.store.LoadLockedPackages()
	if err != nil {
		return err
	}
	valid := b.sanitize(ids)

	b.mu.Lock()
	b.selection = valid
	b.mu.Unlock()

	b.logger.Info("restored locked packages", zap.Int("count", len(valid)))
	return nil
}

// SetLockedPackages replaces the selection. Invalid entries are skipped.
// A running unit sees the new selection on its next focus event.
func (b *Bridge) SetLockedPackages(ids []string) (ok bool) {
	defer b.guard("setLockedPackages", &ok)

	valid := b.sanitize(ids)

	b.mu.Lock()
	b.selection = valid
	s := b.active
	b.mu.Unlock()

	if s != nil {
		s.locked.ReplaceAll(valid)
	}

	if b.store != nil {
		if err := b.store.SaveLockedPackages(valid); err != nil {
			b.logger.Warn("failed to persist locked packages", zap.Error(err))
		}
	}

	b.logger.Info("locked packages updated",
		zap.Int("count", len(valid)),
		zap.Int("skipped", len(ids)-len(valid)))
	return true
}

// StartMonitoringUnit starts a unit seeded with the current selection.
// Starting while running does nothing. Starting fails while a stopped unit
// has not exited yet.
func (b *Bridge) StartMonitoringUnit() (ok bool) {
	defer b.guard("startMonitoringUnit", &ok)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.active != nil {
		return true
	}
	if b.stopping != nil {
		select {
		case <-b.stopping.done:
			b.stopping = nil
		default:
			b.logger.Warn("previous monitoring unit is still stopping")
			return false
		}
	}

	locked := usecase.NewLockedSet(b.selection...)
	unit, err := b.newUnit(locked)
	if err != nil {
		b.logger.Error("failed to create monitoring unit", zap.Error(err))
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		unit:   unit,
		locked: locked,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.active = s

	go b.run(ctx, s)

	b.logger.Info("monitoring unit starting", zap.Int("locked_packages", locked.Len()))
	return true
}

// StopMonitoringUnit stops the running unit and waits for it to exit.
// Stopping while stopped does nothing; stopping again after a timeout waits
// for the same unit once more.
func (b *Bridge) StopMonitoringUnit() (ok bool) {
	defer b.guard("stopMonitoringUnit", &ok)

	b.mu.Lock()
	s := b.active
	b.active = nil
	if s == nil {
		s = b.stopping
	}
	b.stopping = s
	b.mu.Unlock()

	if s == nil {
		return true
	}

	s.cancel()

	timer := time.NewTimer(b.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-s.done:
		b.mu.Lock()
		if b.stopping == s {
			b.stopping = nil
		}
		b.mu.Unlock()
		return true
	case <-timer.C:
		b.logger.Warn("monitoring unit did not stop in time",
			zap.Duration("timeout", b.config.StopTimeout))
		return false
	}
}

// Running reports whether a unit is active.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active != nil
}

// Unlock stops monitoring when tag matches the stored secret.
func (b *Bridge) Unlock(tag string) (ok bool) {
	defer b.guard("unlock", &ok)

	if b.verifier == nil {
		b.logger.Warn("unlock requested but no verifier is configured")
		return false
	}

	match, err := b.verifier.Verify(tag)
	if err != nil {
		if errors.Is(err, usecase.ErrNoSecret) {
			b.logger.Warn("unlock rejected: no secret configured")
		} else {
			b.logger.Error("failed to verify unlock tag", zap.Error(err))
		}
		return false
	}
	if !match {
		b.logger.Info("unlock rejected: tag mismatch")
		return false
	}

	b.logger.Info("unlock accepted")
	return b.StopMonitoringUnit()
}

// Lock starts monitoring.
func (b *Bridge) Lock() bool {
	return b.StartMonitoringUnit()
}

// Status reports the selection and, when running, the unit's state.
func (b *Bridge) Status(ctx context.Context) Status {
	b.mu.Lock()
	st := Status{
		Running:   b.active != nil,
		Selection: append([]string(nil), b.selection...),
	}
	s := b.active
	b.mu.Unlock()

	if s != nil {
		snap, err := s.unit.Snapshot(ctx)
		if err == nil {
			st.Unit = &snap
		} else {
			b.logger.Debug("unit snapshot unavailable", zap.Error(err))
		}
	}
	return st
}

func (b *Bridge) run(ctx context.Context, s *session) {
	defer close(s.done)

	err := s.unit.Run(ctx)
	failed := err != nil && !errors.Is(err, context.Canceled)

	b.mu.Lock()
	if b.stopping == s {
		b.stopping = nil
	}
	if failed && b.active == s {
		b.active = nil
	}
	b.mu.Unlock()

	if failed {
		b.logger.Error("monitoring unit exited", zap.Error(err))
	}
}

func (b *Bridge) sanitize(ids []string) []string {
	valid := make([]string, 0, len(ids))
	for i, raw := range ids {
		id := strings.TrimSpace(raw)
		if !usecase.ValidPackageID(id) {
			b.logger.Warn("skipping invalid package identifier",
				zap.Int("index", i),
				zap.String("value", raw))
			continue
		}
		valid = append(valid, id)
	}
	return valid
}

// guard converts a panic into a false result.
func (b *Bridge) guard(op string, ok *bool) {
	if r := recover(); r != nil {
		b.logger.Error("recovered panic in bridge",
			zap.String("op", op),
			zap.Any("panic", r),
			zap.Stack("stack"))
		*ok = false
	}
}
