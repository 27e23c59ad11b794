package ddl

import "testing"

// TestMapType verifies that MapType normalizes logical type names into the
// expected Postgres SQL types and defaults to TEXT.
func TestMapType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind string
		want string
	}{
		{name: "int lower", kind: "int", want: "BIGINT"},
		{name: "integer lower", kind: "integer", want: "BIGINT"},
		{name: "int mixed case", kind: " InTeGeR ", want: "BIGINT"},
		{name: "bigint upper", kind: "BIGINT", want: "BIGINT"},
		{name: "text", kind: "text", want: "TEXT"},
		{name: "unknown", kind: "uuid", want: "TEXT"},
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
