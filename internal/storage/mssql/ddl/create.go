package ddl

import (
	"strings"

	gddl "romeetl/internal/ddl"
	"romeetl/internal/schema"
)

// BuildCreateTableSQL returns a SQL Server CREATE TABLE statement with
// bracket-quoted identifiers. SQL Server cannot defer constraints, so
// references are plain; the repository transaction disables and re-checks
// them instead.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect:           "mssql ddl",
		Quote:             quote,
		PrimaryKeyNotNull: true,
		IgnoreDeferred:    true,
	})
}

// BuildEntitySQL renders the CREATE TABLE statement of a schema entity.
func BuildEntitySQL(e *schema.Entity) (string, error) {
	return BuildCreateTableSQL(schema.TableDef(e, MapType))
}

func quote(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }
