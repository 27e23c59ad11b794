// Command romeload loads a ROME release archive into a relational store.
//
//	romeload [flags] <zip_path|url> <db_path|dsn>
//	romeload -inspect <zip_path|url>
//
// The destination must not hold a previous load unless -x is given, in which
// case its tables are dropped first. With -inspect the referential members of
// the archive are surveyed against the entity model and the report is printed
// as JSON; nothing is written to a database.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"romeetl/internal/config"
	"romeetl/internal/datasource/httpds"
	"romeetl/internal/datasource/zipfs"
	"romeetl/internal/errs"
	"romeetl/internal/inspect"
	"romeetl/internal/loader"
	"romeetl/internal/metrics/setup"
	"romeetl/internal/storage"

	// register all backends with the storage factory.
	_ "romeetl/internal/storage/all"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes the command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("romeload", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		cfgPath        = flags.String("config", "", "optional JSON config path")
		overwrite      = flags.Bool("x", false, "drop the tables of an existing load first")
		kind           = flags.String("kind", "", "storage kind (sqlite, postgres, mssql, mysql); overrides config")
		batchSize      = flags.Int("batch-size", 0, "records per bulk insert; overrides config")
		metricsBackend = flags.String("metrics-backend", "", "metrics backend (none, pushgateway, datadog); overrides config")
		validate       = flags.Bool("validate", false, "validate the configuration and exit")
		survey         = flags.Bool("inspect", false, "survey the archive against the entity model and exit")
		verbose        = flags.Bool("v", false, "enable verbose logs")
	)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: romeload [flags] <zip_path|url> <db_path|dsn>")
		fmt.Fprintln(stderr, "       romeload -inspect <zip_path|url>")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}
	switch {
	case *survey && flags.NArg() != 1:
		flags.Usage()
		return 2
	case !*survey && !*validate && flags.NArg() != 2:
		flags.Usage()
		return 2
	}
	if !*verbose {
		log.SetOutput(io.Discard)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(stderr, "load .env: %v\n", err)
		return 1
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if *survey {
		clean, err := inspectArchive(ctx, cfg, flags.Arg(0), stdout)
		if err != nil {
			fmt.Fprintf(stderr, "romeload: %v\n", err)
			return 1
		}
		if !clean {
			fmt.Fprintln(stderr, "archive does not match the entity model")
			return 1
		}
		return 0
	}
	if *kind != "" {
		cfg.Storage.Kind = *kind
	}
	if *batchSize != 0 {
		cfg.Runtime.BatchSize = *batchSize
	}
	if *metricsBackend != "" {
		cfg.Metrics.Backend = *metricsBackend
	}
	if flags.NArg() == 2 {
		cfg.Storage.DSN = flags.Arg(1)
	}

	issues := config.Validate(cfg, storage.ListKinds())
	for _, iss := range issues {
		fmt.Fprintln(stderr, iss.Error())
	}
	if config.HasErrors(issues) {
		fmt.Fprintln(stderr, "configuration is invalid")
		return 1
	}
	if *validate {
		fmt.Fprintln(stderr, "configuration is valid")
		return 0
	}

	flush := setup.Install(cfg.Metrics, cfg.Job)
	defer flush()

	start := time.Now()
	if err := load(ctx, cfg, flags.Arg(0), *overwrite); err != nil {
		if errors.Is(err, errs.ErrConflict) {
			fmt.Fprintln(stderr, "database exists")
			return 1
		}
		fmt.Fprintf(stderr, "romeload: %v\n", err)
		return 1
	}
	log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	return 0
}

func openArchive(ctx context.Context, cfg config.Config, archive string) (*zipfs.Archive, error) {
	client := httpds.NewClient(httpds.Config{
		Timeout:            time.Duration(cfg.Download.TimeoutSeconds) * time.Second,
		MaxRetries:         cfg.Download.MaxRetries,
		InsecureSkipVerify: cfg.Download.InsecureSkipVerify,
	})
	return zipfs.Open(ctx, archive, client)
}

// inspectArchive prints the survey of archive to w and reports whether every
// member carries the tags its entity reads.
func inspectArchive(ctx context.Context, cfg config.Config, archive string, w io.Writer) (bool, error) {
	a, err := openArchive(ctx, cfg, archive)
	if err != nil {
		return false, err
	}
	defer a.Close()

	rep, err := inspect.Survey(ctx, a, cfg.Files)
	if err != nil {
		return false, err
	}
	rep.Archive, rep.Checksum = a.Name, a.Checksum
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return false, err
	}
	return rep.Clean(), nil
}

func load(ctx context.Context, cfg config.Config, archive string, overwrite bool) error {
	a, err := openArchive(ctx, cfg, archive)
	if err != nil {
		return err
	}
	defer a.Close()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	l := &loader.Loader{BatchSize: cfg.Runtime.BatchSize, Job: cfg.Job}
	src := loader.Source{FS: a, Name: a.Name, Checksum: a.Checksum}
	return l.Run(ctx, repo, src, cfg.Files, overwrite)
}
