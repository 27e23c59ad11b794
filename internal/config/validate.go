package config

import (
	"fmt"
	"net/url"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning indicates a finding that is surfaced but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "storage.kind"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether issues contains at least one SeverityError.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Validate performs static validation of c. It does not mutate c. kinds lists
// the registered storage kinds; an empty list skips the kind lookup.
func Validate(c Config, kinds []string) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will carry an empty job label",
		})
	}
	issues = append(issues, validateStorage(c.Storage, kinds)...)
	issues = append(issues, validateFiles(c.Files)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	if c.Download.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "download.max_retries",
			Message:  "download.max_retries must be >= 0",
		})
	}
	return issues
}

func validateStorage(s Storage, kinds []string) []Issue {
	var issues []Issue

	if strings.TrimSpace(s.Kind) == "" {
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.kind",
			Message:  "storage.kind must not be empty",
		})
	}
	if len(kinds) > 0 {
		known := false
		for _, k := range kinds {
			if k == s.Kind {
				known = true
				break
			}
		}
		if !known {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "storage.kind",
				Message:  fmt.Sprintf("unknown storage kind %q; registered: %s", s.Kind, strings.Join(kinds, ", ")),
			})
		}
	}
	if strings.TrimSpace(s.DSN) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "storage.dsn",
			Message:  "storage.dsn must not be empty",
		})
	}
	return issues
}

func validateFiles(f Files) []Issue {
	var issues []Issue

	members := append(f.Referentiels(),
		Referentiel{"fiche", f.Fiche},
		Referentiel{"arborescence", f.Arborescence},
	)
	seen := map[string]string{}
	for _, m := range members {
		path := "files." + m.Entity
		if strings.TrimSpace(m.Path) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  path + " must not be empty",
			})
			continue
		}
		if prev, dup := seen[m.Path]; dup {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     path,
				Message:  fmt.Sprintf("%s names the same member as files.%s", path, prev),
			})
		}
		seen[m.Path] = m.Entity
		if !strings.HasSuffix(strings.ToLower(m.Path), ".xml") {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     path,
				Message:  fmt.Sprintf("%s = %q does not look like an XML member", path, m.Path),
			})
		}
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	switch {
	case r.BatchSize <= 0:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  "runtime.batch_size must be > 0",
		})
	case r.BatchSize > 100000:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("runtime.batch_size=%d is unusually large", r.BatchSize),
		})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "pushgateway":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "pushgateway backend requires metrics.pushgateway_url (or PUSHGATEWAY_URL)",
			})
		} else if u, err := url.Parse(m.PushgatewayURL); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  fmt.Sprintf("metrics.pushgateway_url %q is not an absolute URL", m.PushgatewayURL),
			})
		}
	case "datadog":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				Path:     "metrics.datadog_addr",
				Message:  "datadog backend without metrics.datadog_addr; the client default (127.0.0.1:8125) is used",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q (want none, pushgateway or datadog)", m.Backend),
		})
	}
	return issues
}
