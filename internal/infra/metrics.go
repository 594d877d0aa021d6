package infra

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const metricsNamespace = "applock"

// Metrics records core and transport counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	focusEvents        *prometheus.CounterVec
	overlayTransitions *prometheus.CounterVec
	overlayFailures    *prometheus.CounterVec
	scheduledActions   *prometheus.CounterVec
	handlerPanics      prometheus.Counter
	connections        prometheus.Gauge
	requests           *prometheus.CounterVec
}

// NewMetrics creates the collectors. Process and Go runtime collectors are
// registered alongside.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		focusEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "focus_events_total",
				Help:      "Focus notifications by outcome",
			},
			[]string{"outcome"},
		),
		overlayTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "overlay_transitions_total",
				Help:      "Overlay show and hide transitions",
			},
			[]string{"action"},
		),
		overlayFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "overlay_failures_total",
				Help:      "Window manager failures by operation and reason",
			},
			[]string{"op", "reason"},
		),
		scheduledActions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "scheduled_actions_total",
				Help:      "Delayed overlay actions that fired",
			},
			[]string{"kind"},
		),
		handlerPanics: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "handler_panics_total",
				Help:      "Panics recovered at the event handler boundary",
			},
		),
		connections: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Name:      "command_connections",
				Help:      "Open command connections",
			},
		),
		requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "command_requests_total",
				Help:      "Bridge commands by method and result",
			},
			[]string{"method", "result"},
		),
	}
}

// FocusEvent counts a focus notification.
func (m *Metrics) FocusEvent(outcome string) {
	m.focusEvents.WithLabelValues(outcome).Inc()
}

// OverlayTransition counts a show or hide.
func (m *Metrics) OverlayTransition(action string) {
	m.overlayTransitions.WithLabelValues(action).Inc()
}

// OverlayFailure counts a failed window manager call.
func (m *Metrics) OverlayFailure(op string, reason domain.FailureReason) {
	m.overlayFailures.WithLabelValues(op, reason.String()).Inc()
}

// ScheduledAction counts a fired delayed action.
func (m *Metrics) ScheduledAction(kind string) {
	m.scheduledActions.WithLabelValues(kind).Inc()
}

// HandlerPanic counts a recovered panic.
func (m *Metrics) HandlerPanic() {
	m.handlerPanics.Inc()
}

// Connection adjusts the open connection gauge.
func (m *Metrics) Connection(delta int) {
	m.connections.Add(float64(delta))
}

// Request counts a bridge command.
func (m *Metrics) Request(method string, ok bool) {
	result := "false"
	if ok {
		result = "true"
	}
	m.requests.WithLabelValues(method, result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry (for tests).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Ensure Metrics implements domain.MetricsRecorder.
var _ domain.MetricsRecorder = (*Metrics)(nil)
