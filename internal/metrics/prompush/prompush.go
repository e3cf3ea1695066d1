// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// It adapts metrics.Backend to client_golang collectors and pushes the
// registry to a Pushgateway at Flush time instead of exposing a scrape
// endpoint; a tableflow run is a batch job that exits when done.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"tableflow/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // tableflow_step_total{step,status}
	stepDuration *prometheus.SummaryVec // tableflow_step_duration_seconds{step,status}

	rowCounter    *prometheus.CounterVec // tableflow_rows_total{table,kind}
	tableCounter  *prometheus.CounterVec // tableflow_table_total{status}
	tableDuration *prometheus.SummaryVec // tableflow_table_duration_seconds{status}
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (often the config's job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "tableflow"
	}

	reg := prometheus.NewRegistry()
	objectives := map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        reg,
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Total number of tableflow CLI steps, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of tableflow CLI steps in seconds.",
			Objectives: objectives,
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Row outcomes per table and kind (stored, skipped, failed).",
		}, []string{"table", "kind"}),
		tableCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.TableTotal,
			Help: "Finished tables by status (ok, partial, fatal).",
		}, []string{"status"}),
		tableDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.TableDuration,
			Help:       "Per-table processing time in seconds.",
			Objectives: objectives,
		}, []string{"status"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"row counter":    b.rowCounter,
		"table counter":  b.tableCounter,
		"table duration": b.tableDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter == nil {
			return
		}
		b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)

	case metrics.RowsTotal:
		if b.rowCounter == nil {
			return
		}
		b.rowCounter.WithLabelValues(labels["table"], labels["kind"]).Add(delta)

	case metrics.TableTotal:
		if b.tableCounter == nil {
			return
		}
		b.tableCounter.WithLabelValues(labels["status"]).Add(delta)

	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDuration:
		if b.stepDuration == nil {
			return
		}
		b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
	case metrics.TableDuration:
		if b.tableDuration == nil {
			return
		}
		b.tableDuration.WithLabelValues(labels["status"]).Observe(value)
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
