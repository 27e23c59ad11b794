package ddl

import (
	gddl "romeetl/internal/ddl"
	"romeetl/internal/schema"
)

// BuildCreateTableSQL returns a Postgres CREATE TABLE statement for the given
// table definition. Primary-key columns are always rendered NOT NULL.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect:           "postgres ddl",
		Quote:             gddl.QuoteIdent,
		PrimaryKeyNotNull: true,
	})
}

// BuildEntitySQL renders the CREATE TABLE statement of a schema entity.
func BuildEntitySQL(e *schema.Entity) (string, error) {
	return BuildCreateTableSQL(schema.TableDef(e, MapType))
}
