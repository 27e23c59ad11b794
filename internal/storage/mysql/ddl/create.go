package ddl

import (
	"strings"

	gddl "romeetl/internal/ddl"
	"romeetl/internal/schema"
)

// BuildCreateTableSQL returns a MySQL CREATE TABLE statement with
// backtick-quoted identifiers. InnoDB ignores inline REFERENCES, so foreign
// keys are rendered as table constraints; they cannot be deferred.
func BuildCreateTableSQL(t gddl.TableDef) (string, error) {
	return gddl.Render(t, gddl.RenderOptions{
		Dialect:           "mysql ddl",
		Quote:             quote,
		PrimaryKeyNotNull: true,
		IgnoreDeferred:    true,
		TableForeignKeys:  true,
	})
}

// BuildEntitySQL renders the CREATE TABLE statement of a schema entity.
func BuildEntitySQL(e *schema.Entity) (string, error) {
	return BuildCreateTableSQL(schema.TableDef(e, MapType))
}

func quote(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
