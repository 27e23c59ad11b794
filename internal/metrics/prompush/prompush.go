// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package.
//
// This package adapts the generic metrics.Backend interface to Prometheus by:
//
//   - Using client_golang CounterVec, SummaryVec and HistogramVec collectors.
//   - Mapping the metrics labels (step, status, entity, op) onto Prometheus
//     labels; the job label becomes the Pushgateway grouping key.
//   - Pushing collected metrics to a Pushgateway instead of exposing an HTTP
//     scrape endpoint, which suits a short-lived load command.
package prompush

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"romeetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec // rome_step_total
	stepDuration *prometheus.SummaryVec // rome_step_duration_seconds

	rowsCounter  *prometheus.CounterVec // rome_rows_total
	batchCounter *prometheus.CounterVec // rome_batches_total

	queryCounter  *prometheus.CounterVec   // rome_query_total
	queryDuration *prometheus.HistogramVec // rome_query_duration_seconds
}

// NewBackend constructs a Prometheus Pushgateway backend.
// jobName: the Pushgateway "job" name (usually the configured job).
// gatewayURL: base URL of the Pushgateway server.
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, fmt.Errorf("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "rome"
	}

	b := &Backend{
		gatewayURL: gatewayURL,
		jobName:    jobName,
		reg:        prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.StepTotal,
				Help: "Load stage executions, partitioned by step and status.",
			},
			[]string{"step", "status"},
		),
		stepDuration: prometheus.NewSummaryVec(
			prometheus.SummaryOpts{
				Name:       metrics.StepDurationSeconds,
				Help:       "Duration of load stages in seconds, partitioned by step and status.",
				Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
			},
			[]string{"step", "status"},
		),
		rowsCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.RowsTotal,
				Help: "Rows inserted per entity.",
			},
			[]string{"entity"},
		),
		batchCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.BatchesTotal,
				Help: "Bulk insert batches flushed per entity.",
			},
			[]string{"entity"},
		),
		queryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metrics.QueryTotal,
				Help: "Query operations, partitioned by op and status.",
			},
			[]string{"op", "status"},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metrics.QueryDurationSecs,
				Help:    "Duration of query operations in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "status"},
		),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":   b.stepCounter,
		"step summary":   b.stepDuration,
		"rows counter":   b.rowsCounter,
		"batch counter":  b.batchCounter,
		"query counter":  b.queryCounter,
		"query duration": b.queryDuration,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

// IncCounter routes a counter update to its collector. Unknown names and
// nil collectors are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RowsTotal:
		if b.rowsCounter != nil {
			b.rowsCounter.WithLabelValues(labels["entity"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batchCounter != nil {
			b.batchCounter.WithLabelValues(labels["entity"]).Add(delta)
		}
	case metrics.QueryTotal:
		if b.queryCounter != nil {
			b.queryCounter.WithLabelValues(labels["op"], labels["status"]).Add(delta)
		}
	}
}

// ObserveHistogram records step and query durations.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDurationSeconds:
		if b.stepDuration != nil {
			b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
		}
	case metrics.QueryDurationSecs:
		if b.queryDuration != nil {
			b.queryDuration.WithLabelValues(labels["op"], labels["status"]).Observe(value)
		}
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
