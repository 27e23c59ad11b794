// Package ddl provides SQLite-specific helpers for generating CREATE TABLE
// statements from the generic ddl.TableDef model.
//
// The builder here:
//   - Uses simple double-quoted identifiers: "table", "col".
//   - Emits plain CREATE TABLE; callers check for existing tables first.
//   - Renders PRIMARY KEY as a separate table constraint.
//   - Renders deferred foreign keys as DEFERRABLE INITIALLY DEFERRED.
package ddl

import (
	gddl "romeetl/internal/ddl"
	"romeetl/internal/schema"
)

// BuildCreateTableSQL returns a SQLite CREATE TABLE statement for the given
// table definition:
//
//	CREATE TABLE "table" (
//	  "col1" TYPE [NOT NULL] [REFERENCES "t" ("c") DEFERRABLE INITIALLY DEFERRED],
//	  "col2" TYPE,
//	  PRIMARY KEY ("pk1", "pk2")
//	);
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect: "sqlite ddl",
		Quote:   gddl.QuoteIdent,
	})
}

// BuildEntitySQL renders the CREATE TABLE statement of a schema entity.
func BuildEntitySQL(e *schema.Entity) (string, error) {
	return BuildCreateTableSQL(schema.TableDef(e, MapType))
}
