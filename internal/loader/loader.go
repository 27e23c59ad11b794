// Package loader materializes a ROME release into a storage backend.
//
// A release is loaded in stages, each in its own transaction: table creation,
// one stage per referential file, the cards (fiches, link tables and
// mobilities), the arborescence and finally the Ogr backfill. A stage starts
// only after the previous one committed, so later stages can read back what
// earlier ones wrote (Rome codes for mobilities, Ogr tags for the backfill).
//
// Records flow lazily from the XML extractor through the field transformer
// into storage.LoadBatches, which issues one bulk insert per batch. Any error
// aborts the stage; nothing is retried.
package loader

import (
	"context"
	"fmt"
	"iter"

	"romeetl/internal/config"
	"romeetl/internal/metrics"
	xmlparser "romeetl/internal/parser/xml"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/internal/transformer"
	"romeetl/pkg/records"
)

// Loader inserts transformed records in batches.
type Loader struct {
	// BatchSize is the number of records per bulk insert. Zero means
	// config.DefaultBatchSize.
	BatchSize int
	// Job labels metrics.
	Job string
}

func (l *Loader) batchSize() int {
	if l.BatchSize > 0 {
		return l.BatchSize
	}
	return config.DefaultBatchSize
}

// Load transforms every record of seq onto e and inserts the result in
// batches. Kinds owning an Ogr code also get their (code, type) Ogr rows,
// inserted before the batch itself.
func (l *Loader) Load(ctx context.Context, tx storage.Tx, e *schema.Entity, seq iter.Seq2[records.Record, error], defaults transformer.Defaults) (int64, error) {
	return l.load(ctx, tx, e, transformer.Stream(seq, e, defaults))
}

// load inserts already transformed records.
func (l *Loader) load(ctx context.Context, tx storage.Tx, e *schema.Entity, seq iter.Seq2[records.Record, error]) (int64, error) {
	n, err := storage.LoadBatches(ctx, e.Name, seq, l.batchSize(), func(ctx context.Context, batch []records.Record) (int64, error) {
		return l.insert(ctx, tx, e, batch)
	})
	if err != nil {
		return n, fmt.Errorf("loader: %s: %w", e.Name, err)
	}
	return n, nil
}

func (l *Loader) insert(ctx context.Context, tx storage.Tx, e *schema.Entity, batch []records.Record) (int64, error) {
	if e.Ogr != nil {
		tags := make([][]any, len(batch))
		for i, rec := range batch {
			tags[i] = []any{rec[schema.OgrField], int64(*e.Ogr)}
		}
		if _, err := tx.CopyFrom(ctx, schema.Ogr.Name, schema.Ogr.Columns(), tags); err != nil {
			return 0, fmt.Errorf("tag ogr: %w", err)
		}
		metrics.RecordRows(l.Job, schema.Ogr.Name, int64(len(tags)))
	}

	cols := e.Columns()
	rows := make([][]any, len(batch))
	for i, rec := range batch {
		rows[i] = xmlparser.Values(rec, cols)
	}
	n, err := tx.CopyFrom(ctx, e.Name, cols, rows)
	if err != nil {
		return n, err
	}
	metrics.RecordRows(l.Job, e.Name, n)
	metrics.RecordBatches(l.Job, e.Name, 1)
	return n, nil
}

// chain concatenates sequences.
func chain(seqs ...iter.Seq2[records.Record, error]) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for _, seq := range seqs {
			for rec, err := range seq {
				if !yield(rec, err) {
					return
				}
				if err != nil {
					return
				}
			}
		}
	}
}
