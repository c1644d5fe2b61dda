// Package metrics exposes VMWarden's operational counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the warden process.
type Metrics struct {
	AssessmentsTotal    *prometheus.CounterVec
	LookupFailuresTotal prometheus.Counter
	FetchWarningsTotal  prometheus.Counter

	RemediationsTotal  *prometheus.CounterVec
	RemediationSeconds prometheus.Histogram

	FleetChecksTotal    prometheus.Counter
	FleetCheckSeconds   prometheus.Histogram
	FleetTargetsTotal   prometheus.Gauge
	FleetHealthyTotal   prometheus.Gauge
	FleetAttentionGauge prometheus.Gauge

	NotifyFailuresTotal prometheus.Counter

	registry *prometheus.Registry
}

// New creates all metrics on a private registry so tests can build as many
// instances as they like without double-registration panics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{registry: reg}

	m.AssessmentsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "assessments_total",
		Help:      "Completed assessments by resulting category.",
	}, []string{"category"})

	m.LookupFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "lookup_failures_total",
		Help:      "Assessments aborted because the status lookup failed.",
	})

	m.FetchWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "fetch_warnings_total",
		Help:      "Metric or heartbeat fetches that degraded to no-data.",
	})

	m.RemediationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "remediations_total",
		Help:      "Restart attempts by outcome.",
	}, []string{"outcome"})

	m.RemediationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vmwarden",
		Name:      "remediation_duration_seconds",
		Help:      "Wall-clock duration of stop/start cycles.",
		Buckets:   []float64{5, 15, 30, 60, 120, 300, 600},
	})

	m.FleetChecksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "fleet_checks_total",
		Help:      "Completed fleet checks.",
	})

	m.FleetCheckSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vmwarden",
		Name:      "fleet_check_duration_seconds",
		Help:      "Wall-clock duration of fleet checks.",
		Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
	})

	m.FleetTargetsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmwarden",
		Name:      "fleet_targets",
		Help:      "Targets covered by the most recent fleet check.",
	})

	m.FleetHealthyTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmwarden",
		Name:      "fleet_healthy",
		Help:      "Healthy targets in the most recent fleet check.",
	})

	m.FleetAttentionGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vmwarden",
		Name:      "fleet_attention",
		Help:      "Degraded-or-unhealthy targets in the most recent fleet check.",
	})

	m.NotifyFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vmwarden",
		Name:      "notify_failures_total",
		Help:      "Webhook notifications that failed (and were swallowed).",
	})

	reg.MustRegister(
		m.AssessmentsTotal,
		m.LookupFailuresTotal,
		m.FetchWarningsTotal,
		m.RemediationsTotal,
		m.RemediationSeconds,
		m.FleetChecksTotal,
		m.FleetCheckSeconds,
		m.FleetTargetsTotal,
		m.FleetHealthyTotal,
		m.FleetAttentionGauge,
		m.NotifyFailuresTotal,
	)
	return m
}

// Registry exposes the private registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
