package storage

import (
	"strings"

	"romeetl/internal/ddl"
)

// Ident quotes an identifier for use in statements built by callers.
func Ident(name string) string { return ddl.QuoteIdent(name) }

// IdentList quotes and joins identifiers with ", ".
func IdentList(names []string) string {
	q := make([]string, len(names))
	for i, n := range names {
		q[i] = Ident(n)
	}
	return strings.Join(q, ", ")
}

// Placeholders returns n '?' placeholders joined with ", ".
func Placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// InsertSQL builds INSERT INTO "table" ("c1", ...) VALUES (?, ...).
func InsertSQL(table string, columns []string) string {
	return "INSERT INTO " + Ident(table) + " (" + IdentList(columns) + ") VALUES (" + Placeholders(len(columns)) + ")"
}

// Rewrite converts a statement written with '?' placeholders and
// double-quoted identifiers into another dialect. placeholder receives the
// 1-based position of each '?'; quote receives each unquoted identifier.
// A nil function leaves that token unchanged. Single-quoted literals are
// copied verbatim.
func Rewrite(query string, placeholder func(n int) string, quote func(name string) string) string {
	var (
		sb strings.Builder
		n  int
	)
	sb.Grow(len(query) + 16)
	for i := 0; i < len(query); i++ {
		c := query[i]
		switch {
		case c == '\'':
			j := i + 1
			for j < len(query) {
				if query[j] == '\'' {
					if j+1 < len(query) && query[j+1] == '\'' {
						j += 2
						continue
					}
					break
				}
				j++
			}
			end := min(j+1, len(query))
			sb.WriteString(query[i:end])
			i = end - 1
		case c == '"':
			var name strings.Builder
			j := i + 1
			for j < len(query) {
				if query[j] == '"' {
					if j+1 < len(query) && query[j+1] == '"' {
						name.WriteByte('"')
						j += 2
						continue
					}
					break
				}
				name.WriteByte(query[j])
				j++
			}
			if quote == nil || j >= len(query) {
				end := min(j+1, len(query))
				sb.WriteString(query[i:end])
			} else {
				sb.WriteString(quote(name.String()))
			}
			i = j
		case c == '?' && placeholder != nil:
			n++
			sb.WriteString(placeholder(n))
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}
