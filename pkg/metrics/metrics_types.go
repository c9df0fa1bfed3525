package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds the metrics of a patch run
type Registry struct {
	// Edit Metrics
	EditsTotal   *prometheus.CounterVec
	EditDuration *prometheus.HistogramVec

	// Verification Metrics
	ChecksTotal *prometheus.CounterVec

	// Document Metrics
	DocumentNodes       prometheus.Gauge
	DocumentConnections prometheus.Gauge
	IntegrityIssues     *prometheus.GaugeVec

	// Run Metrics
	RunsTotal        *prometheus.CounterVec
	BackupBytes      prometheus.Gauge
	LastRunTimestamp prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
	}

	r.initEditMetrics()
	r.initDocumentMetrics()
	r.initRunMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

func (r *Registry) initEditMetrics() {
	r.EditsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpatch_edits_total",
			Help: "Edits processed, by operation and outcome",
		},
		[]string{"op", "outcome"}, // applied, warned, skipped, failed
	)

	r.EditDuration = promauto.With(r.registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flowpatch_edit_duration_seconds",
			Help:    "Time spent applying a single edit",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
		[]string{"op"},
	)

	r.ChecksTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpatch_checks_total",
			Help: "Verification checks evaluated, by status",
		},
		[]string{"status"}, // PASS, FAIL
	)
}

func (r *Registry) initDocumentMetrics() {
	r.DocumentNodes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowpatch_document_nodes",
			Help: "Number of nodes in the patched document",
		},
	)

	r.DocumentConnections = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowpatch_document_connection_sources",
			Help: "Number of connection entries in the patched document",
		},
	)

	r.IntegrityIssues = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "flowpatch_integrity_issues",
			Help: "Referential integrity issues in the patched document, by kind",
		},
		[]string{"kind"},
	)
}

func (r *Registry) initRunMetrics() {
	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "flowpatch_runs_total",
			Help: "Patch runs, by result",
		},
		[]string{"result"}, // ok, verify_failed, error
	)

	r.BackupBytes = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowpatch_backup_bytes",
			Help: "Compressed size of the last pre-write backup",
		},
	)

	r.LastRunTimestamp = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "flowpatch_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		},
	)
}
