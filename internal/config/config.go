// Package config defines the JSON-serializable configuration shared by the
// romeload, romequery and romeserve commands.
//
// A configuration is assembled in three layers, each overriding the previous:
//
//  1. Default(): sqlite storage, v330 archive member names, batch size 1000.
//  2. An optional JSON file (Load with a non-empty path).
//  3. Environment variables (ROME_STORAGE_KIND, ROME_STORAGE_DSN,
//     ROME_BATCH_SIZE, ROME_METRICS_BACKEND, PUSHGATEWAY_URL, DD_AGENT_ADDR,
//     ...), decoded with caarlos0/env. Unset variables leave values alone.
//
// Command-line flags are applied by the commands on top of the result.
//
// Example (trimmed):
//
//	{
//	  "job": "rome",
//	  "storage": { "kind": "postgres", "dsn": "postgresql://..." },
//	  "files":   { "fiche": "unix_fiche_emploi_metier_v330_iso8859-15.xml" },
//	  "runtime": { "batch_size": 5000 },
//	  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://pushgateway:9091" }
//	}
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
)

// Config is the top-level object decoded from a configuration file.
type Config struct {
	// Job labels metrics and log lines of a run.
	Job string `json:"job" env:"ROME_JOB"`

	Storage  Storage  `json:"storage"`
	Files    Files    `json:"files"`
	Runtime  Runtime  `json:"runtime"`
	Metrics  Metrics  `json:"metrics"`
	Download Download `json:"download"`
	Server   Server   `json:"server"`
}

// Storage selects the backend the dataset is written to or read from.
type Storage struct {
	// Kind is a registered storage kind: "sqlite" or "postgres".
	Kind string `json:"kind" env:"ROME_STORAGE_KIND"`
	// DSN is a SQLite path/DSN or a Postgres connection string.
	DSN string `json:"dsn" env:"ROME_STORAGE_DSN"`
}

// Files names the archive members of one ROME release.
type Files struct {
	Activite     string `json:"activite" env:"ROME_FILE_ACTIVITE"`
	Appellation  string `json:"appellation" env:"ROME_FILE_APPELLATION"`
	EnvTravail   string `json:"env_travail" env:"ROME_FILE_ENV_TRAVAIL"`
	Competence   string `json:"competence" env:"ROME_FILE_COMPETENCE"`
	Rome         string `json:"rome" env:"ROME_FILE_ROME"`
	Fiche        string `json:"fiche" env:"ROME_FILE_FICHE"`
	Arborescence string `json:"arborescence" env:"ROME_FILE_ARBORESCENCE"`
}

// Referentiel is one referential member paired with the entity it loads.
type Referentiel struct {
	Entity string
	Path   string
}

// Referentiels returns the referential members in load order.
func (f Files) Referentiels() []Referentiel {
	return []Referentiel{
		{"activite", f.Activite},
		{"appellation", f.Appellation},
		{"env_travail", f.EnvTravail},
		{"competence", f.Competence},
		{"rome", f.Rome},
	}
}

// Runtime controls batching.
type Runtime struct {
	BatchSize int `json:"batch_size" env:"ROME_BATCH_SIZE"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is one of "", "none", "pushgateway", "datadog".
	Backend        string `json:"backend" env:"ROME_METRICS_BACKEND"`
	PushgatewayURL string `json:"pushgateway_url" env:"PUSHGATEWAY_URL"`
	DatadogAddr    string `json:"datadog_addr" env:"DD_AGENT_ADDR"`
}

// Download configures fetching of http(s) archives.
type Download struct {
	MaxRetries         int  `json:"max_retries" env:"ROME_DOWNLOAD_RETRIES"`
	TimeoutSeconds     int  `json:"timeout_seconds" env:"ROME_DOWNLOAD_TIMEOUT"`
	InsecureSkipVerify bool `json:"insecure_skip_verify" env:"ROME_DOWNLOAD_INSECURE"`
}

// Server configures romeserve.
type Server struct {
	Addr string `json:"addr" env:"ROME_SERVE_ADDR"`
}

// DefaultBatchSize is the number of records per bulk insert.
const DefaultBatchSize = 1000

// DefaultFiles returns the member names of the v330 release.
func DefaultFiles() Files {
	return Files{
		Activite:     "unix_referentiel_activite_v330_iso8859-15.xml",
		Appellation:  "unix_referentiel_appellation_v330_iso8859-15.xml",
		EnvTravail:   "unix_referentiel_env_travail_v330_iso8859-15.xml",
		Competence:   "unix_referentiel_competence_v330_iso8859-15.xml",
		Rome:         "unix_referentiel_code_rome_v330_iso8859-15.xml",
		Fiche:        "unix_fiche_emploi_metier_v330_iso8859-15.xml",
		Arborescence: "unix_arborescence_v330_iso8859-15.xml",
	}
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Job:      "rome",
		Storage:  Storage{Kind: "sqlite"},
		Files:    DefaultFiles(),
		Runtime:  Runtime{BatchSize: DefaultBatchSize},
		Download: Download{MaxRetries: 3, TimeoutSeconds: 300},
		Server:   Server{Addr: ":8080"},
	}
}

// Load builds a Config from the defaults, the JSON file at path (skipped
// when path is empty) and the process environment.
func Load(path string) (Config, error) {
	return load(path, env.Options{})
}

func load(path string, opts env.Options) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: decode %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}
