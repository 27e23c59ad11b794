package storage

import (
	"context"
	"fmt"
	"sync"

	"romeetl/internal/schema"
)

// DDLBuilder renders the CREATE TABLE statement of an entity in a backend's
// dialect. Backends register their builder for their kind at init time.
type DDLBuilder func(e *schema.Entity) (string, error)

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBuilder{}
)

// RegisterDDL registers (or replaces) the DDLBuilder for kind.
func RegisterDDL(kind string, fn DDLBuilder) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

func ddlFor(kind string) (DDLBuilder, error) {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: no DDL builder registered for kind %q", kind)
	}
	return fn, nil
}

// CreateTables creates the tables of entities, in order, through q using the
// DDL builder registered for kind.
func CreateTables(ctx context.Context, kind string, q Querier, entities []*schema.Entity) error {
	build, err := ddlFor(kind)
	if err != nil {
		return err
	}
	for _, e := range entities {
		stmt, err := build(e)
		if err != nil {
			return fmt.Errorf("storage: ddl %s: %w", e.Name, err)
		}
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: create %s: %w", e.Name, err)
		}
	}
	return nil
}

// DropTables drops the tables of entities in reverse order, so that tables
// referencing others go first. Missing tables are ignored.
func DropTables(ctx context.Context, q Querier, entities []*schema.Entity) error {
	for i := len(entities) - 1; i >= 0; i-- {
		stmt := fmt.Sprintf("DROP TABLE IF EXISTS %s", Ident(entities[i].Name))
		if _, err := q.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("storage: drop %s: %w", entities[i].Name, err)
		}
	}
	return nil
}
