package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/caarlos0/env/v11"
)

func writeConfig(tb testing.TB, body string) string {
	tb.Helper()
	p := filepath.Join(tb.TempDir(), "rome.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		tb.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestDefault(t *testing.T) {
	t.Parallel()

	c := Default()
	if c.Storage.Kind != "sqlite" {
		t.Fatalf("Storage.Kind = %q, want sqlite", c.Storage.Kind)
	}
	if c.Runtime.BatchSize != DefaultBatchSize {
		t.Fatalf("BatchSize = %d, want %d", c.Runtime.BatchSize, DefaultBatchSize)
	}
	if c.Files.Rome != "unix_referentiel_code_rome_v330_iso8859-15.xml" {
		t.Fatalf("Files.Rome = %q", c.Files.Rome)
	}
	refs := c.Files.Referentiels()
	if len(refs) != 5 || refs[0].Entity != "activite" || refs[4].Entity != "rome" {
		t.Fatalf("Referentiels = %+v", refs)
	}
}

// TestLoad_Layers checks the file overrides defaults and the environment
// overrides the file, leaving unset keys alone.
func TestLoad_Layers(t *testing.T) {
	t.Parallel()

	p := writeConfig(t, `{
	  "job": "rome-v330",
	  "storage": { "kind": "postgres", "dsn": "postgresql://file" },
	  "files": { "fiche": "fiche.xml" },
	  "runtime": { "batch_size": 250 }
	}`)

	c, err := load(p, env.Options{Environment: map[string]string{
		"ROME_STORAGE_DSN":     "postgresql://env",
		"ROME_METRICS_BACKEND": "datadog",
		"DD_AGENT_ADDR":        "127.0.0.1:8125",
	}})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if c.Job != "rome-v330" {
		t.Errorf("Job = %q", c.Job)
	}
	if c.Storage.Kind != "postgres" {
		t.Errorf("Storage.Kind = %q, want postgres (file)", c.Storage.Kind)
	}
	if c.Storage.DSN != "postgresql://env" {
		t.Errorf("Storage.DSN = %q, want env override", c.Storage.DSN)
	}
	if c.Files.Fiche != "fiche.xml" {
		t.Errorf("Files.Fiche = %q", c.Files.Fiche)
	}
	if c.Files.Rome != DefaultFiles().Rome {
		t.Errorf("Files.Rome = %q, want default", c.Files.Rome)
	}
	if c.Runtime.BatchSize != 250 {
		t.Errorf("BatchSize = %d, want 250", c.Runtime.BatchSize)
	}
	if c.Metrics.Backend != "datadog" || c.Metrics.DatadogAddr != "127.0.0.1:8125" {
		t.Errorf("Metrics = %+v", c.Metrics)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	if _, err := load(filepath.Join(t.TempDir(), "missing.json"), env.Options{}); err == nil {
		t.Fatal("expected error for missing file")
	}
	if _, err := load(writeConfig(t, `{"runtime": {"batch_size": "many"}}`), env.Options{}); err == nil {
		t.Fatal("expected error for a mistyped field")
	}
	_, err := load("", env.Options{Environment: map[string]string{"ROME_BATCH_SIZE": "lots"}})
	if err == nil {
		t.Fatal("expected error for a non-numeric ROME_BATCH_SIZE")
	}
}
