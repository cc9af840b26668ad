// Package sqlite implements a SQLite-backed storage.Repository.
package sqlite

// Config holds SQLite repository configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:propetl.db?_pragma=busy_timeout(5000)"
	//   ":memory:"
	DSN string

	// Table is the listings table, e.g. "listings". Names such as
	// "main.listings" are accepted and quoted per part.
	Table string

	// BatchSize bounds rows per progress batch inside one Save.
	BatchSize int
}
