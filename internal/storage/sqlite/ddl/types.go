package ddl

import "strings"

// MapType maps a logical type string (e.g., "int", "text") into a SQLite
// column type. SQLite uses type affinities, so anything that is not an
// integer is stored as TEXT.
func MapType(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "int", "integer", "bigint":
		return "INTEGER"
	default:
		return "TEXT"
	}
}
