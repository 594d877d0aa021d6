package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
	"github.com/eliteGoblin/focusd/app_lock/internal/policy"
)

// ForegroundState records the application holding focus and the one before it.
type ForegroundState struct {
	Current  string
	Previous string
}

// MonitorConfig holds the monitor's fixed inputs.
type MonitorConfig struct {
	Timing   policy.Timing
	Specials *policy.Registry
	SelfID   string // Identifier of this process; never locked
}

// ForegroundMonitor turns focus notifications into debounced overlay actions.
//
// Not goroutine-safe: HandleEvent and every scheduled action run on the
// monitoring unit's loop.
type ForegroundMonitor struct {
	cfg     MonitorConfig
	locked  *LockedSet
	pending *PendingActions
	overlay Overlay
	metrics domain.MetricsRecorder
	logger  *zap.Logger

	state ForegroundState
}

// NewForegroundMonitor creates a monitor with no recorded foreground app.
func NewForegroundMonitor(
	cfg MonitorConfig,
	locked *LockedSet,
	pending *PendingActions,
	overlay Overlay,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *ForegroundMonitor {
	return &ForegroundMonitor{
		cfg:     cfg,
		locked:  locked,
		pending: pending,
		overlay: overlay,
		metrics: orNop(metrics),
		logger:  logger,
	}
}

// HandleEvent processes one focus notification. It never panics.
func (m *ForegroundMonitor) HandleEvent(ev domain.FocusEvent) {
	defer m.recoverPanic("focus event", ev.Package)

	if ev.Kind != domain.EventWindowStateChanged {
		m.metrics.FocusEvent("ignored")
		return
	}
	id := ev.Package
	if id == "" {
		m.metrics.FocusEvent("ignored")
		return
	}
	if id == m.state.Current {
		m.metrics.FocusEvent("duplicate")
		return
	}

	from := m.state.Current
	m.state.Previous = from
	m.state.Current = id
	m.pending.CancelAll()

	fromSpecial := m.cfg.Specials.IsSpecial(from)
	toSpecial := m.cfg.Specials.IsSpecial(id)

	if !m.ShouldLock(id) {
		m.metrics.FocusEvent("unlocked")
		m.logger.Debug("focus moved to unlocked app",
			zap.String("package", id),
			zap.String("previous", from))
		m.pending.ScheduleHide(m.cfg.Timing.HideDelay(fromSpecial), m.guarded(id, "hide", m.overlay.Hide))
		return
	}

	m.metrics.FocusEvent("locked")
	m.logger.Info("focus moved to locked app",
		zap.String("package", id),
		zap.String("previous", from),
		zap.Bool("special", toSpecial))

	if toSpecial {
		// Special apps repaint over the overlay while starting: show now,
		// then re-assert on the long period.
		m.overlay.Show()
		for _, d := range m.cfg.Timing.ReassertDelays() {
			m.pending.AddReassert(d, m.guarded(id, "reassert", m.overlay.Show))
		}
		return
	}
	m.pending.ScheduleShow(m.cfg.Timing.ShowDelay(false), m.guarded(id, "show", m.overlay.Show))
}

// ShouldLock reports whether the overlay must cover id.
func (m *ForegroundMonitor) ShouldLock(id string) bool {
	return m.locked.Contains(id) && id != m.cfg.SelfID
}

// State returns the recorded foreground state.
func (m *ForegroundMonitor) State() ForegroundState {
	return m.state
}

// guarded wraps action so it only runs while id still holds focus.
func (m *ForegroundMonitor) guarded(id, kind string, action func()) func() {
	return func() {
		defer m.recoverPanic(kind, id)

		if m.state.Current != id {
			m.metrics.ScheduledAction(kind + "_stale")
			m.logger.Debug("dropping stale overlay action",
				zap.String("action", kind),
				zap.String("scheduled_for", id),
				zap.String("current", m.state.Current))
			return
		}
		m.metrics.ScheduledAction(kind)
		action()
	}
}

func (m *ForegroundMonitor) recoverPanic(where, id string) {
	if r := recover(); r != nil {
		m.metrics.HandlerPanic()
		m.logger.Error("recovered panic in monitor",
			zap.String("where", where),
			zap.String("package", id),
			zap.Any("panic", r),
			zap.Stack("stack"))
	}
}
