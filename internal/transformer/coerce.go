package transformer

import (
	"fmt"
	"strconv"
	"strings"

	"romeetl/internal/errs"
	"romeetl/internal/schema"
)

// Coerce converts a raw value to the Go type stored for field f.
//
// Integer fields accept strings (surrounding whitespace ignored) and Go
// integers; an empty string is null and anything else that does not parse is
// an ErrMalformedInput error. Text fields keep non-empty strings and format
// other values; an empty string is null.
func Coerce(f schema.Field, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	if f.Integer() {
		return coerceInt(v)
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil, nil
		}
		return s, nil
	case *string:
		if s == nil || *s == "" {
			return nil, nil
		}
		return *s, nil
	default:
		return fmt.Sprint(v), nil
	}
}

func coerceInt(v any) (any, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return nil, nil
		}
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, errs.Malformed("coerce int", err)
		}
		return i, nil
	}
	return nil, errs.Malformedf("coerce int: unsupported value %#v", v)
}
