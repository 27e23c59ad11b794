// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics of ROME loads and queries.
//
//   - It exposes a narrow interface (Backend) focused on counters and timing
//     data (histograms).
//   - It provides a global, pluggable backend that defaults to a no-op
//     implementation, so metrics are always safe to call even when no real
//     backend is configured.
//   - Concrete systems live in subpackages (prompush, datadog), mirroring the
//     storage registry, so the loader and the query surface depend only on
//     this package.
package metrics

import "time"

// Metric names emitted by the helpers below.
const (
	StepTotal           = "rome_step_total"
	StepDurationSeconds = "rome_step_duration_seconds"
	RowsTotal           = "rome_rows_total"
	BatchesTotal        = "rome_batches_total"
	QueryTotal          = "rome_query_total"
	QueryDurationSecs   = "rome_query_duration_seconds"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends. Implementations
// must be safe for concurrent use: the HTTP surface records from handlers.
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

// SetBackend installs a concrete backend. Passing nil keeps the existing
// backend. It is meant to be called once at startup.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Current returns the installed backend.
func Current() Backend { return backend }

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

func status(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

// RecordStep measures latency and outcome of one load stage.
func RecordStep(job, step string, err error, d time.Duration) {
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status(err),
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDurationSeconds, d.Seconds(), lbls)
}

// RecordRows counts rows inserted into entity.
func RecordRows(job, entity string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":    job,
		"entity": entity,
	})
}

// RecordBatches counts bulk inserts issued for entity.
func RecordBatches(job, entity string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job":    job,
		"entity": entity,
	})
}

// RecordQuery measures latency and outcome of one query operation.
func RecordQuery(op string, err error, d time.Duration) {
	lbls := Labels{
		"op":     op,
		"status": status(err),
	}
	backend.IncCounter(QueryTotal, 1, lbls)
	backend.ObserveHistogram(QueryDurationSecs, d.Seconds(), lbls)
}
