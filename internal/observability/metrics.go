package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ffgs"

// Metrics holds the Prometheus collectors for the forecast pipeline.
type Metrics struct {
	PipelineRunning prometheus.Gauge

	// Stage metrics.
	StageDuration *prometheus.HistogramVec // labels: stage, model
	StageOutcomes *prometheus.CounterVec   // labels: stage, outcome={ok,skipped,failed}

	DownloadedBytes    *prometheus.CounterVec // labels: model
	WorkflowRuns       *prometheus.CounterVec // labels: status
	LastCompletedCycle *prometheus.GaugeVec   // labels: region, model; unix seconds
	ZonesAggregated    *prometheus.CounterVec // labels: model
}

func newMetrics() *Metrics {
	return &Metrics{
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a workflow run is in progress, 0 otherwise.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of one stage for one region.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"stage", "model"}),
		StageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_outcomes_total",
			Help:      "Stage executions by outcome.",
		}, []string{"stage", "outcome"}),
		DownloadedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes fetched from the upstream archives.",
		}, []string{"model"}),
		WorkflowRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Workflow invocations by reported status.",
		}, []string{"status"}),
		LastCompletedCycle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_completed_cycle_timestamp_seconds",
			Help:      "Reference time of the last cycle published per region and model.",
		}, []string{"region", "model"}),
		ZonesAggregated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "zonal_rows_total",
			Help:      "Zonal statistics rows written.",
		}, []string{"model"}),
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PipelineRunning,
		m.StageDuration,
		m.StageOutcomes,
		m.DownloadedBytes,
		m.WorkflowRuns,
		m.LastCompletedCycle,
		m.ZonesAggregated,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
