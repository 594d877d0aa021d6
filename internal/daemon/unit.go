// Package daemon implements the monitoring unit and the background loops
// that run alongside it in the server process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
	"github.com/eliteGoblin/focusd/app_lock/internal/schedule"
	"github.com/eliteGoblin/focusd/app_lock/internal/usecase"
)

// ErrUnitStopped is returned when work is submitted to a unit that has exited.
var ErrUnitStopped = errors.New("monitoring unit stopped")

// ErrSourceClosed is returned by Run when the focus source closes its stream.
var ErrSourceClosed = errors.New("focus source closed")

// UnitConfig holds monitoring unit configuration.
type UnitConfig struct {
	Timing      policy.Timing
	SpecialApps []string
	SelfID      string
}

// DefaultUnitConfig returns default unit configuration.
func DefaultUnitConfig() UnitConfig {
	specials := policy.DefaultSpecialApps()
	ids := make([]string, len(specials))
	for i, a := range specials {
		ids[i] = a.ID
	}
	return UnitConfig{
		Timing:      policy.DefaultTiming(),
		SpecialApps: ids,
	}
}

// UnitDeps are the OS collaborators a unit drives.
type UnitDeps struct {
	Source        domain.FocusSource
	WindowManager domain.WindowManager
	Content       domain.ContentFactory
	Metrics       domain.MetricsRecorder // optional
	Clock         schedule.Clock         // optional, defaults to the wall clock
}

// UnitSnapshot is a point-in-time view of a running unit.
type UnitSnapshot struct {
	Foreground usecase.ForegroundState
	Overlay    domain.OverlayState
	Pending    int
	Locked     int
}

// Unit is one monitoring session: it exists from start to stop and owns the
// foreground state, pending actions, presenter and monitor of that session.
// All of them are touched only from the goroutine running Run.
type Unit struct {
	source  domain.FocusSource
	clock   schedule.Clock
	locked  *usecase.LockedSet
	logger  *zap.Logger
	work    chan func()
	done    chan struct{}
	queue   *schedule.Queue
	pending *usecase.PendingActions

	presenter *usecase.OverlayPresenter
	monitor   *usecase.ForegroundMonitor
}

// NewUnit creates a unit over locked. The caller keeps locked and may
// replace its contents while the unit runs.
func NewUnit(config UnitConfig, locked *usecase.LockedSet, deps UnitDeps, logger *zap.Logger) *Unit {
	clock := deps.Clock
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	queue := schedule.New(clock)
	pending := usecase.NewPendingActions(queue)
	presenter := usecase.NewOverlayPresenter(deps.WindowManager, deps.Content, pending, deps.Metrics, logger)
	monitor := usecase.NewForegroundMonitor(
		usecase.MonitorConfig{
			Timing:   config.Timing,
			Specials: policy.NewRegistryFromIDs(config.SpecialApps),
			SelfID:   config.SelfID,
		},
		locked,
		pending,
		presenter,
		deps.Metrics,
		logger,
	)

	return &Unit{
		source:    deps.Source,
		clock:     clock,
		locked:    locked,
		logger:    logger,
		work:      make(chan func()),
		done:      make(chan struct{}),
		queue:     queue,
		pending:   pending,
		presenter: presenter,
		monitor:   monitor,
	}
}

// Run starts the focus source and processes events, submitted work and due
// overlay actions until ctx is canceled or the source closes.
// A unit runs once.
func (u *Unit) Run(ctx context.Context) error {
	defer close(u.done)

	if err := u.source.Start(ctx); err != nil {
		return fmt.Errorf("failed to start focus source: %w", err)
	}
	defer u.teardown()

	// Clear any overlay left behind by a previous session.
	u.presenter.ForceHide()

	u.logger.Info("monitoring unit started", zap.Int("locked_packages", u.locked.Len()))

	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	events := u.source.Events()
	for {
		u.arm(timer)

		select {
		case <-ctx.Done():
			u.logger.Info("monitoring unit stopping")
			return ctx.Err()

		case ev, ok := <-events:
			if !ok {
				u.logger.Warn("focus source closed its event stream")
				return ErrSourceClosed
			}
			u.monitor.HandleEvent(ev)

		case fn := <-u.work:
			fn()

		case <-timer.C:
		}

		u.queue.RunDue()
	}
}

// Do runs fn on the unit's loop and waits for it to finish.
func (u *Unit) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	job := func() {
		defer close(finished)
		fn()
	}

	select {
	case u.work <- job:
	case <-u.done:
		return ErrUnitStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot reports the unit's state as seen from its loop.
func (u *Unit) Snapshot(ctx context.Context) (UnitSnapshot, error) {
	var snap UnitSnapshot
	err := u.Do(ctx, func() {
		snap = UnitSnapshot{
			Foreground: u.monitor.State(),
			Overlay:    u.presenter.State(),
			Pending:    u.queue.Len(),
			Locked:     u.locked.Len(),
		}
	})
	return snap, err
}

// Done is closed once Run has returned.
func (u *Unit) Done() <-chan struct{} {
	return u.done
}

// arm points timer at the earliest pending action.
func (u *Unit) arm(timer *time.Timer) {
	next, ok := u.queue.Next()
	if !ok {
		timer.Stop()
		return
	}
	d := next.Sub(u.clock.Now())
	if d < 0 {
		d = 0
	}
	timer.Reset(d)
}

func (u *Unit) teardown() {
	u.pending.CancelAll()
	u.queue.Clear()
	u.presenter.Destroy()
	if err := u.source.Stop(); err != nil {
		u.logger.Warn("failed to stop focus source", zap.Error(err))
	}
	u.logger.Info("monitoring unit stopped")
}
