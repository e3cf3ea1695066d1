package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"tableflow/internal/metrics"
)

// readCounterValue reads the current value of a Counter for assertions in tests.
func readCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()

	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("Counter.Write() error = %v", err)
	}
	if m.GetCounter() == nil {
		t.Fatalf("metric did not contain Counter value")
	}
	return m.GetCounter().GetValue()
}

// readSummaryCountSum reads sample count and sum from a SummaryVec.
func readSummaryCountSum(t *testing.T, v *prometheus.SummaryVec, labels ...string) (uint64, float64) {
	t.Helper()

	m := &dto.Metric{}
	metric, ok := v.WithLabelValues(labels...).(prometheus.Metric)
	if !ok {
		t.Fatalf("SummaryVec.WithLabelValues(...) does not implement prometheus.Metric")
	}
	if err := metric.Write(m); err != nil {
		t.Fatalf("Summary.Write() error = %v", err)
	}
	s := m.GetSummary()
	if s == nil {
		t.Fatalf("metric did not contain Summary value")
	}
	return s.GetSampleCount(), s.GetSampleSum()
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		jobName     string
		gatewayURL  string
		wantErr     bool
		wantJobName string
	}{
		{name: "missing gateway URL returns error", jobName: "job", wantErr: true},
		{name: "empty job name uses default", gatewayURL: "http://pushgateway:9091", wantJobName: "tableflow"},
		{name: "explicit job name is preserved", jobName: "nightly", gatewayURL: "http://pushgateway:9091", wantJobName: "nightly"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := NewBackend(tt.jobName, tt.gatewayURL)
			if tt.wantErr {
				if err == nil || b != nil {
					t.Fatalf("NewBackend(%q, %q) = %v, %v; want nil, error", tt.jobName, tt.gatewayURL, b, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewBackend(%q, %q) error = %v", tt.jobName, tt.gatewayURL, err)
			}
			if b.jobName != tt.wantJobName {
				t.Fatalf("backend.jobName = %q, want %q", b.jobName, tt.wantJobName)
			}
			if b.rowCounter == nil || b.tableCounter == nil || b.tableDuration == nil || b.stepCounter == nil {
				t.Fatal("collectors not initialized")
			}
		})
	}
}

// TestIncCounter verifies that IncCounter routes updates to the right
// collectors and ignores unknown metric names.
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("tableflow", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}

	b.IncCounter(metrics.RowsTotal, 20, metrics.Labels{"table": "t1", "kind": "stored"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"table": "t1", "kind": "stored"})
	b.IncCounter(metrics.TableTotal, 1, metrics.Labels{"status": "fatal"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "run", "status": "success"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"foo": "bar"})

	if got := readCounterValue(t, b.rowCounter.WithLabelValues("t1", "stored")); got != 22 {
		t.Fatalf("rows{t1,stored} = %v, want 22", got)
	}
	if got := readCounterValue(t, b.tableCounter.WithLabelValues("fatal")); got != 1 {
		t.Fatalf("table{fatal} = %v, want 1", got)
	}
	if got := readCounterValue(t, b.stepCounter.WithLabelValues("run", "success")); got != 1 {
		t.Fatalf("step{run,success} = %v, want 1", got)
	}
	if got := readCounterValue(t, b.tableCounter.WithLabelValues("ok")); got != 0 {
		t.Fatalf("table{ok} = %v, want 0", got)
	}
}

// TestNilCollectors ensures a zero-value Backend does not panic.
func TestNilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "stored"})
	b.IncCounter(metrics.TableTotal, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.TableDuration, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.StepDuration, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b, err := NewBackend("tableflow", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.ObserveHistogram(metrics.TableDuration, 1.5, metrics.Labels{"table": "t1", "status": "ok"})
	b.ObserveHistogram(metrics.StepDuration, 0.5, metrics.Labels{"step": "run", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"status": "ok"})

	if n, sum := readSummaryCountSum(t, b.tableDuration, "ok"); n != 1 || sum != 1.5 {
		t.Fatalf("table duration = (%d, %v), want (1, 1.5)", n, sum)
	}
	if n, sum := readSummaryCountSum(t, b.stepDuration, "run", "success"); n != 1 || sum != 0.5 {
		t.Fatalf("step duration = (%d, %v), want (1, 0.5)", n, sum)
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway URL.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequestInfo struct {
		method string
		path   string
		body   string
	}
	reqCh := make(chan pushRequestInfo, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequestInfo{method: r.Method, path: r.URL.Path, body: string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("nightly", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"table": "t1", "kind": "stored"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequestInfo
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("push method = %q, want PUT", got.method)
	}
	if !strings.Contains(got.path, "/job/nightly") {
		t.Fatalf("push path = %q, want job grouping", got.path)
	}
	if len(got.body) == 0 {
		t.Fatalf("push body is empty")
	}
}

// BenchmarkIncCounterRows measures the cost of counting row outcomes
// through the Backend abstraction.
func BenchmarkIncCounterRows(b *testing.B) {
	backend, err := NewBackend("tableflow", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"table": "t1", "kind": "stored"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}
