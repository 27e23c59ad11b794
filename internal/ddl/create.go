// Package ddl defines a small, backend-agnostic model for SQL DDL and helpers
// to render simple CREATE TABLE statements from that model.
//
// The model does not assume any specific SQL dialect; RenderOptions carries
// the dialect-dependent parts. With zero options, as used by
// BuildCreateTableSQL, Render:
//
//   - Emits TableDef.FQN and ColumnDef.Name as-is; RenderOptions.Quote quotes
//     them, splitting the FQN on dots.
//   - Emits plain CREATE TABLE; RenderOptions.IfNotExists adds IF NOT EXISTS.
//   - Renders deferred references as DEFERRABLE INITIALLY DEFERRED, unless
//     RenderOptions.IgnoreDeferred is set for dialects without deferrable
//     constraints.
//   - Renders references inline; RenderOptions.TableForeignKeys moves them to
//     FOREIGN KEY table constraints after the primary key, for dialects that
//     ignore inline references.
//   - Treats ColumnDef.Default as raw SQL (the caller is responsible for
//     safety and dialect correctness).
//
// Backend-specific packages (internal/storage/{sqlite,postgres,mssql,mysql}/ddl)
// call Render with their own options.
package ddl

import (
	"fmt"
	"strings"
)

// RenderOptions controls dialect-dependent parts of Render.
type RenderOptions struct {
	// Dialect prefixes error messages, e.g. "sqlite ddl".
	Dialect string
	// Quote quotes an identifier; nil emits identifiers verbatim.
	Quote func(string) string
	// IfNotExists adds IF NOT EXISTS after CREATE TABLE.
	IfNotExists bool
	// PrimaryKeyNotNull forces NOT NULL on primary key columns.
	PrimaryKeyNotNull bool
	// IgnoreDeferred renders deferred references as plain references.
	IgnoreDeferred bool
	// TableForeignKeys renders references as FOREIGN KEY table constraints.
	TableForeignKeys bool
}

// BuildCreateTableSQL renders a generic CREATE TABLE statement from a TableDef.
//
// Rules:
//
//   - t.FQN must be non-empty; it is emitted verbatim as the table name.
//
//   - Each column must have a non-empty Name and SQLType.
//
//   - A column is rendered as:
//
//     <Name> <SQLType> [NOT NULL] [DEFAULT <Default>] [REFERENCES <t> (<c>) [DEFERRABLE INITIALLY DEFERRED]]
//
//   - Columns with PrimaryKey == true are collected and rendered as a separate
//     PRIMARY KEY (<col1>, <col2>, ...) clause at the end of the column list.
func BuildCreateTableSQL(t TableDef) (string, error) {
	return Render(t, RenderOptions{Dialect: "ddl"})
}

// Render renders t with the given dialect options.
func Render(t TableDef, o RenderOptions) (string, error) {
	quote := o.Quote
	if quote == nil {
		quote = func(s string) string { return s }
	}
	prefix := o.Dialect
	if prefix == "" {
		prefix = "ddl"
	}

	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("%s: table FQN must not be empty", prefix)
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("%s: at least one column is required", prefix)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	var fks []string

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("%s: column with empty name in table %s", prefix, fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("%s: column %s missing SQLType", prefix, name)
		}

		var sb strings.Builder
		sb.WriteString(quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)

		if !c.Nullable || (c.PrimaryKey && o.PrimaryKeyNotNull) {
			sb.WriteString(" NOT NULL")
		}

		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			// Default is emitted as raw SQL expression.
			sb.WriteString(def)
		}

		if fk := c.References; fk != nil {
			if strings.TrimSpace(fk.Table) == "" || strings.TrimSpace(fk.Column) == "" {
				return "", fmt.Errorf("%s: column %s has an incomplete reference", prefix, name)
			}
			ref := fmt.Sprintf("REFERENCES %s (%s)", quote(fk.Table), quote(fk.Column))
			if fk.Deferred && !o.IgnoreDeferred {
				ref += " DEFERRABLE INITIALLY DEFERRED"
			}
			if o.TableForeignKeys {
				fks = append(fks, fmt.Sprintf("FOREIGN KEY (%s) %s", quote(name), ref))
			} else {
				sb.WriteString(" " + ref)
			}
		}

		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, quote(name))
		}
	}

	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}
	cols = append(cols, fks...)

	create := "CREATE TABLE "
	if o.IfNotExists {
		create += "IF NOT EXISTS "
	}
	table := fqn
	if o.Quote != nil {
		table = quoteFQN(fqn, quote)
	}

	stmt := fmt.Sprintf(
		"%s%s (\n  %s\n);",
		create,
		table,
		strings.Join(cols, ",\n  "),
	)

	return stmt, nil
}

// QuoteIdent applies standard SQL double-quote identifier quoting.
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

func quoteFQN(fqn string, quote func(string) string) string {
	parts := strings.Split(fqn, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, quote(p))
	}
	return strings.Join(out, ".")
}
