package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"time"

	"romeetl/internal/config"
	"romeetl/internal/errs"
	"romeetl/internal/metrics"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// Source is an opened release archive.
type Source struct {
	FS fs.FS
	// Name and Checksum are recorded in load_info.
	Name     string
	Checksum string
}

// Run loads the release in src into repo. When repo already holds a load, or
// its destination existed before it was opened (see storage.Preexisting),
// Run fails with errs.ErrConflict unless overwrite is set, in which case the
// tables of a previous load are dropped in the first stage. Other tables of a
// preexisting destination are left alone.
func (l *Loader) Run(ctx context.Context, repo storage.Repository, src Source, files config.Files, overwrite bool) error {
	exists, err := repo.TableExists(ctx, schema.Ogr.Name)
	if err != nil {
		return fmt.Errorf("loader: check destination: %w", err)
	}
	if exists && !overwrite {
		return fmt.Errorf("loader: %s: %w", repo.Kind(), errs.ErrConflict)
	}
	if p, ok := repo.(storage.Preexisting); ok && p.Preexisting() && !overwrite {
		return fmt.Errorf("loader: %s: destination exists: %w", repo.Kind(), errs.ErrConflict)
	}

	start := time.Now()
	log.Printf("loader: run archive=%s checksum=%s kind=%s batch=%d", src.Name, src.Checksum, repo.Kind(), l.batchSize())

	err = l.stage(ctx, repo, "ddl", func(tx storage.Tx) (int64, error) {
		if exists {
			log.Printf("loader: dropping existing tables")
			if err := storage.DropTables(ctx, tx, schema.All()); err != nil {
				return 0, err
			}
		}
		return 0, storage.CreateTables(ctx, repo.Kind(), tx, schema.All())
	})
	if err != nil {
		return err
	}

	for _, ref := range files.Referentiels() {
		e, err := schema.Lookup(ref.Entity)
		if err != nil {
			return err
		}
		err = l.stage(ctx, repo, e.Name, func(tx storage.Tx) (int64, error) {
			f, err := src.FS.Open(ref.Path)
			if err != nil {
				return 0, fmt.Errorf("open %s: %w", ref.Path, err)
			}
			defer f.Close()
			return l.Load(ctx, tx, e, xmlparser.Stream(f), nil)
		})
		if err != nil {
			return err
		}
	}

	romeCodes, err := CollectRomeCodes(ctx, repo)
	if err != nil {
		return err
	}
	err = l.stage(ctx, repo, "cards", func(tx storage.Tx) (int64, error) {
		b, err := fs.ReadFile(src.FS, files.Fiche)
		if err != nil {
			return 0, fmt.Errorf("open %s: %w", files.Fiche, err)
		}
		root, err := xmlparser.ParseBytes(b)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", files.Fiche, err)
		}
		return l.LoadCards(ctx, tx, root, romeCodes)
	})
	if err != nil {
		return err
	}

	err = l.stage(ctx, repo, schema.Arborescence.Name, func(tx storage.Tx) (int64, error) {
		h, err := l.BuildHierarchy(ctx, tx, func() (io.ReadCloser, error) {
			return src.FS.Open(files.Arborescence)
		})
		if err == nil {
			log.Printf("loader: arborescence nodes=%d referentiels=%d", h.Nodes, len(h.Roots))
		}
		return h.Nodes, err
	})
	if err != nil {
		return err
	}

	err = l.stage(ctx, repo, "backfill", func(tx storage.Tx) (int64, error) {
		if err := Backfill(ctx, tx); err != nil {
			return 0, err
		}
		info := records.Record{
			"archive":   src.Name,
			"checksum":  src.Checksum,
			"loaded_at": time.Now().UTC().Format(time.RFC3339),
		}
		return tx.CopyFrom(ctx, schema.LoadInfo.Name, schema.LoadInfo.Columns(), [][]any{xmlparser.Values(info, schema.LoadInfo.Columns())})
	})
	if err != nil {
		return err
	}

	log.Printf("loader: run complete elapsed=%s", time.Since(start).Truncate(time.Millisecond))
	return nil
}

// stage runs fn in its own transaction and records its outcome.
func (l *Loader) stage(ctx context.Context, repo storage.Repository, step string, fn func(storage.Tx) (int64, error)) error {
	start := time.Now()
	var rows int64
	err := storage.WithTx(ctx, repo, func(tx storage.Tx) error {
		n, err := fn(tx)
		rows = n
		return err
	})
	elapsed := time.Since(start)
	metrics.RecordStep(l.Job, step, err, elapsed)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Printf("loader: stage=%s canceled", step)
		}
		return fmt.Errorf("loader: stage %s: %w", step, err)
	}
	log.Printf("loader: stage=%s rows=%d elapsed=%s", step, rows, elapsed.Truncate(time.Millisecond))
	return nil
}
