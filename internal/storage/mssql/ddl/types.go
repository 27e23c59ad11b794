// Package ddl contains MSSQL-specific helpers for generating DDL.
package ddl

import "strings"

// MapType maps a logical type string into a SQL Server column type.
// Integers are BIGINT; anything else falls back to NVARCHAR(MAX).
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "BIGINT"
	default:
		return "NVARCHAR(MAX)"
	}
}
