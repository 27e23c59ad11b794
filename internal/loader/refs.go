package loader

import (
	"context"
	"fmt"
	"iter"

	"romeetl/internal/errs"
	"romeetl/internal/schema"
	"romeetl/internal/storage"
	"romeetl/pkg/records"
)

// codeSet holds the key values of one table.
type codeSet map[int64]struct{}

// refSets maps a referenced table to the keys already loaded into it.
type refSets map[string]codeSet

// collectCodes reads column of every row of table.
func collectCodes(ctx context.Context, q storage.Querier, table, column string) (codeSet, error) {
	rows, err := q.Query(ctx, fmt.Sprintf("SELECT %s FROM %s", storage.Ident(column), storage.Ident(table)))
	if err != nil {
		return nil, fmt.Errorf("loader: collect %s codes: %w", table, err)
	}
	set := make(codeSet, len(rows))
	for _, r := range rows {
		if v, ok := r.Int64(column); ok {
			set[v] = struct{}{}
		}
	}
	return set, nil
}

// collectRefs loads the key sets of the tables the foreign keys of entities
// point at, skipping the tables in skip.
func collectRefs(ctx context.Context, q storage.Querier, entities []*schema.Entity, skip ...string) (refSets, error) {
	refs := refSets{}
	for _, t := range skip {
		refs[t] = nil
	}
	for _, e := range entities {
		for _, f := range e.Fields {
			if !f.Kind.IsForeign() {
				continue
			}
			if _, seen := refs[f.Ref.Table]; seen {
				continue
			}
			set, err := collectCodes(ctx, q, f.Ref.Table, f.Ref.Column)
			if err != nil {
				return nil, err
			}
			refs[f.Ref.Table] = set
		}
	}
	for _, t := range skip {
		delete(refs, t)
	}
	return refs, nil
}

// check verifies that every foreign key of rec with a known target table
// names a loaded row. A required key left empty is reported too.
func (r refSets) check(e *schema.Entity, rec records.Record) error {
	for _, f := range e.Fields {
		if !f.Kind.IsForeign() {
			continue
		}
		v, ok := rec[f.Name].(int64)
		if !ok {
			if f.Required && rec[f.Name] == nil {
				return errs.Malformedf("%s: missing %s", e.Name, f.SourceKey())
			}
			continue
		}
		set, known := r[f.Ref.Table]
		if !known {
			continue
		}
		if _, found := set[v]; !found {
			return errs.Malformedf("%s: %s %d not found in %s", e.Name, f.Name, v, f.Ref.Table)
		}
	}
	return nil
}

// each applies fn to every record of seq; the first error ends the sequence.
func each(seq iter.Seq2[records.Record, error], fn func(records.Record) error) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for rec, err := range seq {
			if err == nil {
				err = fn(rec)
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}
