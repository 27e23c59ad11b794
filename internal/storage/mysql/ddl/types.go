// Package ddl contains MySQL-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical type string into a MySQL column type. Text is
// LONGTEXT so long definitions are never truncated.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	default:
		return "LONGTEXT"
	}
}
