// Package metrics records engine measurements with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	automation "github.com/goliatone/go-automation"
)

const (
	StatusOK    = "ok"
	StatusError = "error"
)

// PrometheusRecorder implements automation.MetricsRecorder.
type PrometheusRecorder struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	units        *prometheus.CounterVec
	unitDuration *prometheus.HistogramVec
	paused       prometheus.Gauge
}

var _ automation.MetricsRecorder = (*PrometheusRecorder)(nil)

type Option func(*config)

type config struct {
	namespace string
	buckets   []float64
}

// WithNamespace prefixes every metric name. Defaults to "automation".
func WithNamespace(ns string) Option {
	return func(c *config) {
		c.namespace = ns
	}
}

// WithBuckets sets the histogram buckets in seconds.
func WithBuckets(buckets []float64) Option {
	return func(c *config) {
		if len(buckets) > 0 {
			c.buckets = buckets
		}
	}
}

// NewPrometheusRecorder creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer. Registration panics on name
// collisions, as MustRegister does.
func NewPrometheusRecorder(reg prometheus.Registerer, opts ...Option) *PrometheusRecorder {
	cfg := &config{namespace: "automation", buckets: prometheus.DefBuckets}
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &PrometheusRecorder{
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: cfg.namespace, Name: "runs_total", Help: "Total number of automation runs by final status."},
			[]string{"automation", "status"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: cfg.namespace, Name: "run_duration_seconds", Help: "Duration of automation runs in seconds.", Buckets: cfg.buckets},
			[]string{"automation"},
		),
		units: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: cfg.namespace, Name: "unit_invocations_total", Help: "Total number of unit invocations by outcome."},
			[]string{"kind", "unit", "status"},
		),
		unitDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Namespace: cfg.namespace, Name: "unit_duration_seconds", Help: "Duration of unit invocations in seconds.", Buckets: cfg.buckets},
			[]string{"kind", "unit"},
		),
		paused: prometheus.NewGauge(
			prometheus.GaugeOpts{Namespace: cfg.namespace, Name: "paused_executions", Help: "Number of outstanding paused executions."},
		),
	}
	reg.MustRegister(r.runs, r.runDuration, r.units, r.unitDuration, r.paused)
	return r
}

func (r *PrometheusRecorder) RecordUnit(kind automation.UnitKind, name string, duration time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	r.units.WithLabelValues(string(kind), name, status).Inc()
	r.unitDuration.WithLabelValues(string(kind), name).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordRun(alias, status string, duration time.Duration) {
	r.runs.WithLabelValues(alias, status).Inc()
	r.runDuration.WithLabelValues(alias).Observe(duration.Seconds())
}

func (r *PrometheusRecorder) RecordPaused(count int) {
	r.paused.Set(float64(count))
}
