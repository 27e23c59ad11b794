package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"romeetl/internal/metrics"
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
	return m.GetSummary().GetSampleCount(), m.GetSummary().GetSampleSum()
}

func newBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend("rome", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	return b
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if b, err := NewBackend("rome", ""); err == nil || b != nil {
		t.Fatalf("NewBackend without URL = %v, %v; want nil, error", b, err)
	}
	b, err := NewBackend("", "http://pushgateway:9091")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	if b.jobName != "rome" {
		t.Fatalf("jobName = %q, want default rome", b.jobName)
	}
}

// TestIncCounter verifies that IncCounter routes updates to the correct
// collectors and ignores unknown metric names.
func TestIncCounter(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "cards", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 5, metrics.Labels{"entity": "rome"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"entity": "rome"})
	b.IncCounter(metrics.BatchesTotal, 1, metrics.Labels{"entity": "rome"})
	b.IncCounter(metrics.QueryTotal, 1, metrics.Labels{"op": "tree", "status": "failure"})
	b.IncCounter("unknown_metric", 10, metrics.Labels{"entity": "rome"})

	if got := readCounterValue(t, b.stepCounter.WithLabelValues("cards", "success")); got != 1 {
		t.Fatalf("stepCounter = %v, want 1", got)
	}
	if got := readCounterValue(t, b.rowsCounter.WithLabelValues("rome")); got != 7 {
		t.Fatalf("rowsCounter = %v, want 7", got)
	}
	if got := readCounterValue(t, b.batchCounter.WithLabelValues("rome")); got != 1 {
		t.Fatalf("batchCounter = %v, want 1", got)
	}
	if got := readCounterValue(t, b.queryCounter.WithLabelValues("tree", "failure")); got != 1 {
		t.Fatalf("queryCounter = %v, want 1", got)
	}
}

// TestNilCollectors ensures a zero-value backend does not panic.
func TestNilCollectors(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "s", "status": "success"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"entity": "ogr"})
	b.ObserveHistogram(metrics.StepDurationSeconds, 1, metrics.Labels{})
	b.ObserveHistogram(metrics.QueryDurationSecs, 1, metrics.Labels{})
}

func TestObserveHistogram(t *testing.T) {
	t.Parallel()

	b := newBackend(t)
	b.ObserveHistogram(metrics.StepDurationSeconds, 1.5, metrics.Labels{"step": "arborescence", "status": "success"})
	b.ObserveHistogram("other_metric", 2.0, metrics.Labels{"step": "arborescence", "status": "success"})

	count, sum := readSummaryCountSum(t, b.stepDuration, "arborescence", "success")
	if count != 1 || sum != 1.5 {
		t.Fatalf("summary = %d/%v, want 1/1.5", count, sum)
	}

	b.ObserveHistogram(metrics.QueryDurationSecs, 0.02, metrics.Labels{"op": "profile", "status": "success"})
	mfs, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == metrics.QueryDurationSecs {
			found = mf.GetMetric()[0].GetHistogram().GetSampleCount() == 1
		}
	}
	if !found {
		t.Fatalf("%s not gathered with one sample", metrics.QueryDurationSecs)
	}
}

// TestFlush verifies that Flush pushes the registry to the configured
// Pushgateway under the job grouping key.
func TestFlush(t *testing.T) {
	t.Parallel()

	type pushRequest struct {
		method string
		path   string
		body   string
	}
	reqCh := make(chan pushRequest, 1)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushRequest{method: r.Method, path: r.URL.Path, body: string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	b, err := NewBackend("rome-job", server.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"entity": "ogr"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushRequest
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() did not result in any HTTP request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Fatalf("method = %q, want PUT", got.method)
	}
	if !strings.Contains(got.path, "/job/rome-job") {
		t.Fatalf("path = %q, want job grouping key", got.path)
	}
	if got.body == "" {
		t.Fatalf("push body is empty")
	}
}
