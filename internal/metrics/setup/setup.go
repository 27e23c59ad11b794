// Package setup installs the metrics backend selected by configuration.
package setup

import (
	"log"

	"romeetl/internal/config"
	"romeetl/internal/metrics"
	"romeetl/internal/metrics/datadog"
	"romeetl/internal/metrics/prompush"
)

// Install selects the global metrics backend from m and returns a function
// flushing it, to be deferred by the caller. A backend that fails to start
// is logged and metrics stay disabled.
func Install(m config.Metrics, job string) (flush func()) {
	flush = func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}

	switch m.Backend {
	case "pushgateway":
		if job == "" {
			job = "rome"
		}
		b, err := prompush.NewBackend(job, m.PushgatewayURL)
		if err != nil {
			log.Printf("metrics: failed to init prom push backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: url=%v, backend=%v, job_name=%v", m.PushgatewayURL, m.Backend, job)
		metrics.SetBackend(b)

	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.DatadogAddr,
			Namespace:  "rome.",
			GlobalTags: []string{"job:" + job},
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
			return func() {}
		}
		log.Printf("metrics: addr=%v, backend=%v", m.DatadogAddr, m.Backend)
		metrics.SetBackend(b)

	case "", "none":
		return func() {}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", m.Backend)
		return func() {}
	}
	return flush
}
