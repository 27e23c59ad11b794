package storage

import (
	"context"
	"fmt"
	"iter"
	"log"
	"time"
)

// FlushFn persists one batch and returns the number of rows it reported as
// inserted. It is called with a slice that is reused after it returns.
type FlushFn[T any] func(ctx context.Context, batch []T) (int64, error)

// LoadBatches drains 'in', groups items into batches of size 'batchSize' and
// calls 'flush' for each non-empty batch. It returns the total number of rows
// reported by flush and the first error encountered, either from the input
// sequence or from flush. Input errors abort the load before the pending
// batch is flushed.
//
// Cancellation: returns (total, ctx.Err()) when canceled. Progress is logged on
// each successful flush.
func LoadBatches[T any](
	ctx context.Context,
	name string,
	in iter.Seq2[T, error],
	batchSize int,
	flush FlushFn[T],
) (int64, error) {
	if batchSize <= 0 {
		return 0, fmt.Errorf("batchSize must be > 0")
	}
	if flush == nil {
		return 0, fmt.Errorf("flush must not be nil")
	}

	var (
		total       int64
		batches     int64
		batch       = make([]T, 0, batchSize)
		start       = time.Now()
		lastFlushTS = start
		lastTotal   int64
	)

	doFlush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := flush(ctx, batch)
		total += n

		// Reuse allocated slice; keep capacity to avoid churn.
		batch = batch[:0]

		if err != nil {
			log.Printf("loader: %s: flush failed after=%d total=%d err=%v", name, n, total, err)

			return err
		}

		batches++
		now := time.Now()
		sinceLast := now.Sub(lastFlushTS)
		insertedSinceLast := total - lastTotal
		rps := float64(0)
		if sinceLast > 0 {
			rps = float64(insertedSinceLast) / sinceLast.Seconds()
		}
		log.Printf(
			"%s batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
			name,
			batches,
			rps,
			n,
			total,
			now.Sub(start).Truncate(time.Millisecond),
			sinceLast.Truncate(time.Millisecond),
		)
		lastFlushTS = now
		lastTotal = total

		return nil
	}

	for item, err := range in {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return total, ctxErr
		}
		if err != nil {
			return total, err
		}
		batch = append(batch, item)
		if len(batch) >= batchSize {
			if err := doFlush(); err != nil {
				return total, err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return total, err
	}
	pending := len(batch)
	if err := doFlush(); err != nil {
		return total, err
	}
	log.Printf("loader: %s: input exhausted, final_flush=%d total_inserted=%d", name, pending, total)

	return total, nil
}
