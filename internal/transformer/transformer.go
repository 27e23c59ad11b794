// Package transformer maps extracted XML records onto the typed fields of a
// schema entity.
//
// For every field of the entity the source key is the field's rename (see
// schema.Field.Source) or its own name. The value is read from the record, or
// from the defaults when the record lacks the key; defaults carry values the
// XML does not hold, such as the Rome code a card's link rows belong to. The
// value is then coerced: key and int fields to int64, text fields to string,
// absent or empty values to nil.
//
// The record is updated in place: coerced fields are written under their
// field names and unrelated source keys are left for the caller to ignore.
package transformer

import (
	"fmt"
	"iter"

	"romeetl/internal/schema"
	"romeetl/pkg/records"
)

// Defaults holds fallback values keyed by source key.
type Defaults map[string]any

// Apply coerces rec onto the fields of e.
func Apply(rec records.Record, e *schema.Entity, defaults Defaults) error {
	// Read all sources before writing so a field name that doubles as another
	// field's source key is never read back already coerced.
	vals := make([]any, len(e.Fields))
	for i, f := range e.Fields {
		key := f.SourceKey()
		v, ok := rec[key]
		if !ok {
			v = defaults[key]
		}
		vals[i] = v
	}
	for i, f := range e.Fields {
		cv, err := Coerce(f, vals[i])
		if err != nil {
			return fmt.Errorf("transformer: %s.%s: %w", e.Name, f.Name, err)
		}
		rec[f.Name] = cv
	}
	return nil
}

// Stream applies Apply lazily to every record of seq. The first error,
// either from seq or from coercion, is yielded and ends the sequence.
func Stream(seq iter.Seq2[records.Record, error], e *schema.Entity, defaults Defaults) iter.Seq2[records.Record, error] {
	return func(yield func(records.Record, error) bool) {
		for rec, err := range seq {
			if err == nil {
				err = Apply(rec, e, defaults)
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
