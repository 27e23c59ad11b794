package ddl

import "testing"

// TestMapType verifies that MapType maps logical type names into SQLite
// column types and falls back to TEXT.
func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind string
		want string
	}{
		{name: "int lower", kind: "int", want: "INTEGER"},
		{name: "integer", kind: "integer", want: "INTEGER"},
		{name: "bigint", kind: "bigint", want: "INTEGER"},
		{name: "int mixed", kind: "  InTeGeR  ", want: "INTEGER"},
		{name: "text", kind: "text", want: "TEXT"},
		{name: "empty", kind: "", want: "TEXT"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := MapType(tt.kind); got != tt.want {
				t.Fatalf("MapType(%q) = %q, want %q", tt.kind, got, tt.want)
			}
		})
	}
}
