// Command romeserve serves a loaded ROME store over HTTP.
//
//	romeserve [-config file] [-kind sqlite|postgres|mssql|mysql] -db <dsn> [-addr :8080]
package main

import (
	"context"
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
	"golang.org/x/sync/errgroup"

	"romeetl/internal/config"
	"romeetl/internal/metrics/setup"
	"romeetl/internal/query"
	"romeetl/internal/storage"
	"romeetl/internal/webui"

	// register all backends with the storage factory.
	_ "romeetl/internal/storage/all"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "romeserve: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is canceled or the server fails.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	flags := flag.NewFlagSet("romeserve", flag.ContinueOnError)
	flags.SetOutput(stderr)
	var (
		cfgPath = flags.String("config", "", "optional JSON config path")
		dsn     = flags.String("db", "", "store DSN or SQLite path; overrides config")
		kind    = flags.String("kind", "", "storage kind; overrides config")
		addr    = flags.String("addr", "", "listen address; overrides config")
	)
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	if *dsn != "" {
		cfg.Storage.DSN = *dsn
	}
	if *kind != "" {
		cfg.Storage.Kind = *kind
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	flush := setup.Install(cfg.Metrics, cfg.Job)
	defer flush()

	repo, err := storage.New(ctx, storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.Storage.DSN})
	if err != nil {
		return err
	}
	defer repo.Close()

	srv := webui.NewServer(webui.Config{Addr: cfg.Server.Addr}, query.New(repo))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		log.Printf("romeserve: shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}
