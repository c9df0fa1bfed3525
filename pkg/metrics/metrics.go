// Package metrics records patch-run metrics in a private Prometheus registry.
// A run is a short-lived process, so metrics are exported by writing a
// node_exporter textfile rather than serving /metrics.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/dd0wney/flowpatch/pkg/workflow"
)

// RecordEdit records one edit with its outcome and duration
func (r *Registry) RecordEdit(op, outcome string, duration time.Duration) {
	r.EditsTotal.WithLabelValues(op, outcome).Inc()
	r.EditDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordCheck records a verification finding status
func (r *Registry) RecordCheck(status string) {
	r.ChecksTotal.WithLabelValues(status).Inc()
}

// ObserveDocument sets the document gauges from doc
func (r *Registry) ObserveDocument(doc *workflow.Document) {
	r.DocumentNodes.Set(float64(len(doc.Nodes)))
	r.DocumentConnections.Set(float64(len(doc.Connections)))

	// Reset known kinds so a fixed issue drops back to zero
	counts := map[workflow.IssueKind]int{
		workflow.IssueDuplicateName:  0,
		workflow.IssueDanglingSource: 0,
		workflow.IssueDanglingTarget: 0,
	}
	for _, issue := range doc.Integrity() {
		counts[issue.Kind]++
	}
	for kind, n := range counts {
		r.IntegrityIssues.WithLabelValues(string(kind)).Set(float64(n))
	}
}

// RecordRun records the end of a run
func (r *Registry) RecordRun(result string) {
	r.RunsTotal.WithLabelValues(result).Inc()
	r.LastRunTimestamp.Set(float64(time.Now().Unix()))
}

// RecordBackup records the size of a written backup
func (r *Registry) RecordBackup(size int64) {
	r.BackupBytes.Set(float64(size))
}

// WriteTextfile writes every metric to path in the Prometheus text format
// for the node_exporter textfile collector.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
