package usecase

import (
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

// Overlay is what the monitor drives.
type Overlay interface {
	Show()
	Hide()
}

// OverlayPresenter owns the single overlay window and its visibility state.
// Its state always follows the window manager's answers, including after
// failed attach or detach calls.
//
// Not goroutine-safe: it lives on the monitoring unit's loop.
type OverlayPresenter struct {
	wm      domain.WindowManager
	factory domain.ContentFactory
	pending *PendingActions
	metrics domain.MetricsRecorder
	logger  *zap.Logger

	content domain.OverlayContent
	state   domain.OverlayState
}

// NewOverlayPresenter creates a hidden presenter. pending may be nil.
func NewOverlayPresenter(
	wm domain.WindowManager,
	factory domain.ContentFactory,
	pending *PendingActions,
	metrics domain.MetricsRecorder,
	logger *zap.Logger,
) *OverlayPresenter {
	return &OverlayPresenter{
		wm:      wm,
		factory: factory,
		pending: pending,
		metrics: orNop(metrics),
		logger:  logger,
		state:   domain.OverlayHidden,
	}
}

// Show attaches the overlay. Calling it while shown does nothing.
func (p *OverlayPresenter) Show() {
	if p.state == domain.OverlayShown {
		return
	}
	if p.pending != nil {
		p.pending.CancelHide()
	}

	content, err := p.ensureContent()
	if err != nil {
		p.logger.Error("failed to build overlay content", zap.Error(err))
		p.metrics.OverlayFailure("build", domain.ReasonUnknown)
		p.state = domain.OverlayHidden
		return
	}

	params := domain.OverlayLayoutParams()
	res := p.wm.AddOverlay(content, params)
	if res.OK() {
		p.markShown()
		return
	}
	p.metrics.OverlayFailure("attach", res.Reason)

	if res.Reason != domain.ReasonAlreadyAttached {
		p.logger.Warn("failed to attach overlay",
			zap.String("reason", res.Reason.String()),
			zap.Error(res.Err))
		p.state = domain.OverlayHidden
		return
	}

	// A stale window is still attached: force-detach it and retry once.
	p.logger.Info("overlay already attached, re-attaching",
		zap.String("content", content.Describe()))
	if rm := p.wm.RemoveOverlay(content); !rm.OK() {
		p.logger.Debug("force detach before retry failed",
			zap.String("reason", rm.Reason.String()),
			zap.Error(rm.Err))
	}

	retry := p.wm.AddOverlay(content, params)
	switch {
	case retry.OK():
		p.markShown()
	case retry.Reason == domain.ReasonAlreadyAttached:
		p.logger.Warn("overlay still attached after retry, treating as shown")
		p.metrics.OverlayFailure("attach_retry", retry.Reason)
		p.state = domain.OverlayShown
	default:
		p.logger.Warn("failed to re-attach overlay",
			zap.String("reason", retry.Reason.String()),
			zap.Error(retry.Err))
		p.metrics.OverlayFailure("attach_retry", retry.Reason)
		p.state = domain.OverlayHidden
	}
}

// Hide detaches the overlay. Calling it while hidden does nothing.
// The presenter ends hidden whatever the window manager answers.
func (p *OverlayPresenter) Hide() {
	if p.state == domain.OverlayHidden || p.content == nil {
		p.state = domain.OverlayHidden
		return
	}

	res := p.wm.RemoveOverlay(p.content)
	p.state = domain.OverlayHidden

	switch {
	case res.OK():
		p.metrics.OverlayTransition("hide")
		p.logger.Debug("overlay hidden")
	case res.Reason == domain.ReasonNotAttached:
		p.metrics.OverlayFailure("detach", res.Reason)
		p.logger.Debug("overlay was not attached")
	default:
		p.metrics.OverlayFailure("detach", res.Reason)
		p.logger.Warn("failed to detach overlay",
			zap.String("reason", res.Reason.String()),
			zap.Error(res.Err))
	}
}

// ForceHide detaches the overlay whatever the recorded state, clearing a
// window left attached by an earlier session. Not-attached counts as success;
// the presenter ends hidden.
func (p *OverlayPresenter) ForceHide() {
	p.state = domain.OverlayHidden
	if p.pending != nil {
		p.pending.CancelHide()
	}

	content, err := p.ensureContent()
	if err != nil {
		p.logger.Error("failed to build overlay content", zap.Error(err))
		p.metrics.OverlayFailure("build", domain.ReasonUnknown)
		return
	}

	res := p.wm.RemoveOverlay(content)
	switch {
	case res.OK():
		p.metrics.OverlayTransition("hide")
		p.logger.Info("cleared leftover overlay")
	case res.Reason == domain.ReasonNotAttached:
	default:
		p.metrics.OverlayFailure("detach", res.Reason)
		p.logger.Warn("failed to clear overlay",
			zap.String("reason", res.Reason.String()),
			zap.Error(res.Err))
	}
}

// Destroy hides the overlay and releases its content.
func (p *OverlayPresenter) Destroy() {
	p.Hide()
	p.content = nil
}

// State returns the current visibility.
func (p *OverlayPresenter) State() domain.OverlayState {
	return p.state
}

func (p *OverlayPresenter) markShown() {
	p.state = domain.OverlayShown
	p.metrics.OverlayTransition("show")
	p.logger.Debug("overlay shown")
}

func (p *OverlayPresenter) ensureContent() (domain.OverlayContent, error) {
	if p.content != nil {
		return p.content, nil
	}
	content, err := p.factory.NewOverlayContent()
	if err != nil {
		return nil, err
	}
	p.content = content
	return content, nil
}

var _ Overlay = (*OverlayPresenter)(nil)
