package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "rome.db"
	//   "file:rome.db?cache=shared"
	//   ":memory:"
	DSN string
}
