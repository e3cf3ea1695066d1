// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from tableflow runs.
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete metric systems live in subpackages (prompush, datadog), mirroring
//     the storage factory, so the pipeline depends only on this package.
//
// Install a backend with SetBackend before a run starts; the recording
// functions are then safe to call from concurrent table workers.
package metrics

import "time"

// Metric names emitted by tableflow.
const (
	StepTotal     = "tableflow_step_total"
	StepDuration  = "tableflow_step_duration_seconds"
	RowsTotal     = "tableflow_rows_total"
	TableTotal    = "tableflow_table_total"
	TableDuration = "tableflow_table_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Reset restores the no-op backend.
func Reset() {
	backend = nopBackend{}
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one CLI step such as
// "load_config", "open_sink" or "run".
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows adds n row outcomes of kind ("stored", "skipped", "failed") for
// a table. Non-positive n is ignored.
func RecordRows(table, kind string, n int) {
	if n <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(n), Labels{
		"table": table,
		"kind":  kind,
	})
}

// RecordTable counts a finished table by status ("ok", "partial", "fatal")
// and records how long it took.
func RecordTable(table, status string, d time.Duration) {
	lbls := Labels{"table": table, "status": status}
	backend.IncCounter(TableTotal, 1, lbls)
	backend.ObserveHistogram(TableDuration, d.Seconds(), lbls)
}
