// Package metrics exposes the server's own Prometheus metrics on /metrics.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wattboard/wattboard/server/internal/status"
)

const namespace = "wattboard"

// Rejection reasons recorded by RejectReading.
const (
	ReasonMissingBuilding  = "missing_building"
	ReasonInvalidValue     = "invalid_value"
	ReasonInvalidBaseline  = "invalid_baseline"
	ReasonInvalidBreakdown = "invalid_breakdown"
	ReasonInvalidForecast  = "invalid_forecast"
	ReasonOutOfOrder       = "out_of_order"
)

// Gauges are read at scrape time from the live server state.
type Gauges struct {
	ActiveAlerts func() int
	Buildings    func() int
}

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	batches  prometheus.Counter
	readings *prometheus.CounterVec
	rejected *prometheus.CounterVec
	alerts   *prometheus.CounterVec
}

// New creates and registers the server metrics.
func New(g Gauges) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_received_total",
			Help:      "Reading batches pushed by agents.",
		}),
		readings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_total",
			Help:      "Accepted readings by classification band.",
		}, []string{"band"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "readings_rejected_total",
			Help:      "Readings dropped during ingestion by reason.",
		}, []string{"reason"}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alert_events_total",
			Help:      "Alert lifecycle events (raised, escalated, resolved).",
		}, []string{"event"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.batches, m.readings, m.rejected, m.alerts,
	)
	if g.ActiveAlerts != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_alerts",
			Help:      "Alerts awaiting resolution.",
		}, func() float64 { return float64(g.ActiveAlerts()) }))
	}
	if g.Buildings != nil {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "buildings_reporting",
			Help:      "Buildings with a reading inside the snapshot TTL.",
		}, func() float64 { return float64(g.Buildings()) }))
	}
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) BatchReceived() {
	if m == nil {
		return
	}
	m.batches.Inc()
}

func (m *Metrics) ObserveReading(b status.Band) {
	if m == nil {
		return
	}
	m.readings.WithLabelValues(string(b)).Inc()
}

func (m *Metrics) RejectReading(reason string) {
	if m == nil {
		return
	}
	m.rejected.WithLabelValues(reason).Inc()
}

// AlertEvent counts one lifecycle event. Events named "none" are ignored.
func (m *Metrics) AlertEvent(event string) {
	if m == nil || event == "none" {
		return
	}
	m.alerts.WithLabelValues(event).Inc()
}
