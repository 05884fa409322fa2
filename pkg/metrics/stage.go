package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StageMetrics records per-stage timings and row outcomes for warehouse loads.
type StageMetrics struct {
	duration *prometheus.HistogramVec
	success  *prometheus.CounterVec
	failure  *prometheus.CounterVec
	rows     *prometheus.CounterVec
	runs     *prometheus.CounterVec
}

// NewStageMetrics registers the load metrics on the provided registerer.
func NewStageMetrics(reg prometheus.Registerer) *StageMetrics {
	if reg == nil {
		return &StageMetrics{}
	}
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "shopdw_stage_duration_seconds",
		Help:    "Duration of warehouse load stages in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"stage"})
	success := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdw_stage_success_total",
		Help: "Successful warehouse load stages.",
	}, []string{"stage"})
	failure := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdw_stage_failure_total",
		Help: "Failed warehouse load stages.",
	}, []string{"stage"})
	rows := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdw_stage_rows_total",
		Help: "Rows processed by warehouse load stages, by outcome.",
	}, []string{"stage", "outcome"})
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shopdw_runs_total",
		Help: "Warehouse load runs, by final status.",
	}, []string{"status"})
	reg.MustRegister(duration, success, failure, rows, runs)
	return &StageMetrics{
		duration: duration,
		success:  success,
		failure:  failure,
		rows:     rows,
		runs:     runs,
	}
}

// ObserveDuration records the duration for the named stage.
func (m *StageMetrics) ObserveDuration(stage string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(stage)).Observe(duration.Seconds())
}

// IncSuccess increments the success counter for the named stage.
func (m *StageMetrics) IncSuccess(stage string) {
	if m == nil || m.success == nil {
		return
	}
	m.success.WithLabelValues(normalizeLabel(stage)).Inc()
}

// IncFailure increments the failure counter for the named stage.
func (m *StageMetrics) IncFailure(stage string) {
	if m == nil || m.failure == nil {
		return
	}
	m.failure.WithLabelValues(normalizeLabel(stage)).Inc()
}

// AddRows adds n rows with the given outcome (inserted, updated, skipped...).
func (m *StageMetrics) AddRows(stage, outcome string, n int) {
	if m == nil || m.rows == nil || n <= 0 {
		return
	}
	m.rows.WithLabelValues(normalizeLabel(stage), normalizeLabel(outcome)).Add(float64(n))
}

// IncRun counts a finished run by status.
func (m *StageMetrics) IncRun(status string) {
	if m == nil || m.runs == nil {
		return
	}
	m.runs.WithLabelValues(normalizeLabel(status)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
