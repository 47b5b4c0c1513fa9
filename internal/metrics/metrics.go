// Package metrics exposes Prometheus metrics for timetable resolution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for resolutions.
const (
	OutcomeActive   = "active"
	OutcomeUpcoming = "upcoming"
	OutcomeNone     = "none"
)

// Manager owns a private registry and the collectors registered in it.
type Manager struct {
	registry *prometheus.Registry

	resolutions   *prometheus.CounterVec
	windowErrors  prometheus.Counter
	untilNext     prometheus.Gauge
	coursesLoaded prometheus.Gauge
	loadErrors    prometheus.Counter
	barUpdates    *prometheus.CounterVec
}

// NewManager creates a Manager with all collectors registered.
func NewManager() *Manager {
	const ns = "timetable"
	m := &Manager{
		registry: prometheus.NewRegistry(),
		resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "resolutions_total",
			Help:      "Nearest-course resolutions by outcome.",
		}, []string{"outcome"}),
		windowErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "window_expand_errors_total",
			Help:      "Windows skipped during resolution because expansion failed.",
		}),
		untilNext: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "seconds_until_next",
			Help:      "Seconds until the nearest course starts; 0 while one is active, -1 if none.",
		}),
		coursesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "courses_loaded",
			Help:      "Courses loaded at startup.",
		}),
		loadErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "load_errors_total",
			Help:      "Course files or feeds that failed to load.",
		}),
		barUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bar_updates_total",
			Help:      "Status bar updates by result.",
		}, []string{"result"}),
	}
	m.registry.MustRegister(m.resolutions, m.windowErrors, m.untilNext, m.coursesLoaded, m.loadErrors, m.barUpdates)
	return m
}

// ObserveResolution records one resolution. until is ignored unless the
// outcome is OutcomeUpcoming.
func (m *Manager) ObserveResolution(outcome string, until time.Duration, windowErrors int) {
	if m == nil {
		return
	}
	m.resolutions.WithLabelValues(outcome).Inc()
	m.windowErrors.Add(float64(windowErrors))
	switch outcome {
	case OutcomeActive:
		m.untilNext.Set(0)
	case OutcomeUpcoming:
		m.untilNext.Set(until.Seconds())
	default:
		m.untilNext.Set(-1)
	}
}

// ObserveLoad records the result of loading courses.
func (m *Manager) ObserveLoad(courses, errs int) {
	if m == nil {
		return
	}
	m.coursesLoaded.Set(float64(courses))
	m.loadErrors.Add(float64(errs))
}

// ObserveBarUpdate records a presenter push.
func (m *Manager) ObserveBarUpdate(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.barUpdates.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Manager) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
