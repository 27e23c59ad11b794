// Package records defines the map-shaped record passed between the XML
// extractor, the field transformer, the storage backends and the query layer.
package records

// Record maps a field or column name to its value. Values produced by the XML
// extractor are strings; after transformation key and int fields hold int64,
// text fields hold string, and absent values are nil.
type Record map[string]any

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Restrict returns a copy of r holding only the listed keys. Keys missing from
// r are emitted with a nil value so that every listed field is present.
func (r Record) Restrict(keys []string) Record {
	out := make(Record, len(keys))
	for _, k := range keys {
		out[k] = r[k]
	}
	return out
}

// Merge copies every key of src into r, overwriting existing keys.
func (r Record) Merge(src Record) Record {
	for k, v := range src {
		r[k] = v
	}
	return r
}

// Int64 returns the value stored under key as an int64. Drivers report
// integers with different widths; all of them are accepted.
func (r Record) Int64(key string) (int64, bool) {
	switch v := r[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int16:
		return int64(v), true
	case int8:
		return int64(v), true
	case uint32:
		return int64(v), true
	}
	return 0, false
}

// String returns the value stored under key when it is a string.
func (r Record) String(key string) (string, bool) {
	s, ok := r[key].(string)
	return s, ok
}
