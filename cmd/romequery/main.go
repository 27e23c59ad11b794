// Command romequery prints records of a loaded ROME store as JSON.
//
//	romequery -db <dsn> code <ogr>
//	romequery -db <dsn> profile <rome ogr>
//	romequery -db <dsn> tree <referentiel root ogr>
//	romequery -db <dsn> referentiels
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/joho/godotenv"

	"romeetl/internal/config"
	"romeetl/internal/query"
	"romeetl/internal/storage"

	// register all backends with the storage factory.
	_ "romeetl/internal/storage/all"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	flags := flag.NewFlagSet("romequery", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		cfgPath = flags.String("config", "", "optional JSON config path")
		dsn     = flags.String("db", "", "store DSN or SQLite path; overrides config")
		kind    = flags.String("kind", "", "storage kind; overrides config")
	)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "usage: romequery [flags] code|profile|tree <ogr> | referentiels")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		return 2
	}

	op := flags.Arg(0)
	var id int64
	switch op {
	case "code", "profile", "tree":
		if flags.NArg() != 2 {
			flags.Usage()
			return 2
		}
		v, err := strconv.ParseInt(flags.Arg(1), 10, 64)
		if err != nil {
			fmt.Fprintf(stderr, "bad ogr %q\n", flags.Arg(1))
			return 2
		}
		id = v
	case "referentiels":
	default:
		flags.Usage()
		return 2
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
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	if *kind != "" {
		cfg.Storage.Kind = *kind
	}

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		fmt.Fprintf(stderr, "romequery: %v\n", err)
		return 1
	}
	defer repo.Close()

	svc := query.New(repo)
	var out any
	switch op {
	case "code":
		out, err = svc.GetByCode(ctx, id)
	case "profile":
		out, err = svc.GetProfile(ctx, id)
	case "tree":
		out, err = svc.GetReferentielTree(ctx, id)
	case "referentiels":
		out, err = svc.ListReferentiels(ctx)
	}
	if err != nil {
		fmt.Fprintf(stderr, "romequery: %v\n", err)
		return 1
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(stderr, "romequery: encode: %v\n", err)
		return 1
	}
	return 0
}
