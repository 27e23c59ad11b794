package storage

import (
	"strconv"
	"strings"
	"testing"
)

func TestRewrite(t *testing.T) {
	t.Parallel()

	at := func(n int) string { return "@p" + strconv.Itoa(n) }
	bracket := func(name string) string { return "[" + strings.ReplaceAll(name, "]", "]]") + "]" }

	tests := []struct {
		name  string
		in    string
		ph    func(int) string
		quote func(string) string
		want  string
	}{
		{name: "untouched", in: `SELECT "a" FROM t WHERE x = ?`, want: `SELECT "a" FROM t WHERE x = ?`},
		{name: "placeholders", in: `WHERE a = ? AND b = ?`, ph: at, want: `WHERE a = @p1 AND b = @p2`},
		{name: "identifiers", in: `SELECT l."rome" FROM "rome_appellation" l`, quote: bracket, want: `SELECT l.[rome] FROM [rome_appellation] l`},
		{name: "escaped quote", in: `SELECT "odd""name"`, quote: bracket, want: `SELECT [odd"name]`},
		{name: "literal kept", in: `SELECT 'it''s "x" ?', ?`, ph: at, quote: bracket, want: `SELECT 'it''s "x" ?', @p1`},
		{name: "question mark in identifier", in: `SELECT "a?b" FROM t WHERE x = ?`, ph: at, quote: bracket, want: `SELECT [a?b] FROM t WHERE x = @p1`},
		{name: "unterminated identifier", in: `SELECT "abc`, quote: bracket, want: `SELECT "abc`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Rewrite(tt.in, tt.ph, tt.quote); got != tt.want {
				t.Fatalf("Rewrite(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
