package usecase

import "github.com/eliteGoblin/focusd/app_lock/internal/domain"

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) FocusEvent(string)                           {}
func (NopMetrics) OverlayTransition(string)                    {}
func (NopMetrics) OverlayFailure(string, domain.FailureReason) {}
func (NopMetrics) ScheduledAction(string)                      {}
func (NopMetrics) HandlerPanic()                               {}

var _ domain.MetricsRecorder = NopMetrics{}

func orNop(m domain.MetricsRecorder) domain.MetricsRecorder {
	if m == nil {
		return NopMetrics{}
	}
	return m
}
