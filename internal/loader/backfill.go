package loader

import (
	"context"
	"fmt"

	"romeetl/internal/schema"
	"romeetl/internal/storage"
)

// Backfill tags, for each typed kind, the Ogr rows of the codes the kind owns
// and the arborescence nodes whose item is one of them. Ogr rows are already
// tagged at insert time, so the first two statements only repair missing or
// stale tags; the item type of a node can only be known here.
//
// The statements avoid upsert syntax so every backend runs them unchanged.
func Backfill(ctx context.Context, q storage.Querier) error {
	ogr, code, typ := storage.Ident(schema.Ogr.Name), storage.Ident("code"), storage.Ident("type")
	key := storage.Ident(schema.OgrField)
	for _, t := range schema.OgrTypes {
		e := t.Entity()
		owned := storage.Ident(e.Name)

		retag := fmt.Sprintf("UPDATE %s SET %s = %d WHERE %s IN (SELECT %s FROM %s)",
			ogr, typ, int(t), code, key, owned)
		if _, err := q.Exec(ctx, retag); err != nil {
			return fmt.Errorf("loader: backfill ogr %s: %w", e.Name, err)
		}

		missing := fmt.Sprintf(
			"INSERT INTO %s (%s, %s) SELECT k.%s, %d FROM %s k WHERE NOT EXISTS (SELECT 1 FROM %s o WHERE o.%s = k.%s)",
			ogr, code, typ, key, int(t), owned, ogr, code, key,
		)
		if _, err := q.Exec(ctx, missing); err != nil {
			return fmt.Errorf("loader: backfill ogr %s: %w", e.Name, err)
		}

		items := fmt.Sprintf(
			"UPDATE %s SET %s = %d WHERE %s IN (SELECT %s FROM %s)",
			storage.Ident(schema.Arborescence.Name), storage.Ident("item_type"), int(t),
			storage.Ident("item"), key, owned,
		)
		if _, err := q.Exec(ctx, items); err != nil {
			return fmt.Errorf("loader: backfill arborescence %s: %w", e.Name, err)
		}
	}
	return nil
}
