// Package metrics holds the prometheus instruments of the compositor.
// All methods are safe to call on a nil *Metrics, which records nothing
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	// Launch metrics
	LaunchesTotal  prometheus.Counter
	LaunchFailures *prometheus.CounterVec
	ProcessExits   *prometheus.CounterVec

	// Surface metrics
	SurfacesLive  prometheus.Gauge
	SurfacesTotal prometheus.Counter

	// Close metrics
	CloseRequests    prometheus.Counter
	CloseEscalations *prometheus.CounterVec
	CloseOutcomes    *prometheus.CounterVec
}

// New creates all instruments on a fresh registry, so several compositors
// (or tests) never collide on the global one
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		LaunchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marathon_launches_total",
			Help: "Apps whose process was started",
		}),
		LaunchFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marathon_process_errors_total",
			Help: "Process errors by category",
		}, []string{"kind"}),
		ProcessExits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marathon_process_exits_total",
			Help: "Finished app processes by kind of exit",
		}, []string{"kind"}),

		SurfacesLive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marathon_surfaces",
			Help: "Currently tracked client surfaces",
		}),
		SurfacesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marathon_surfaces_created_total",
			Help: "Client surfaces ever tracked",
		}),

		CloseRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "marathon_close_requests_total",
			Help: "Window close requests that started a close sequence",
		}),
		CloseEscalations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marathon_close_escalations_total",
			Help: "Signals sent to apps that ignored a close request",
		}, []string{"signal"}),
		CloseOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marathon_close_outcomes_total",
			Help: "How close sequences ended",
		}, []string{"outcome"}),
	}
}

// Handler serves the registry in the prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{Registry: m.Registry})
}

func (m *Metrics) Launched() {
	if m == nil {
		return
	}
	m.LaunchesTotal.Inc()
}

func (m *Metrics) ProcessError(kind string) {
	if m == nil {
		return
	}
	m.LaunchFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProcessExited(kind string) {
	if m == nil {
		return
	}
	m.ProcessExits.WithLabelValues(kind).Inc()
}

func (m *Metrics) SurfaceAdded() {
	if m == nil {
		return
	}
	m.SurfacesTotal.Inc()
	m.SurfacesLive.Inc()
}

func (m *Metrics) SurfaceRemoved() {
	if m == nil {
		return
	}
	m.SurfacesLive.Dec()
}

func (m *Metrics) CloseRequested() {
	if m == nil {
		return
	}
	m.CloseRequests.Inc()
}

func (m *Metrics) Escalated(signal string) {
	if m == nil {
		return
	}
	m.CloseEscalations.WithLabelValues(signal).Inc()
}

func (m *Metrics) CloseFinished(outcome string) {
	if m == nil {
		return
	}
	m.CloseOutcomes.WithLabelValues(outcome).Inc()
}
