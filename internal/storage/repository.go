// Package storage defines the backend-agnostic persistence contract for
// ingested listings and the factory that opens a concrete backend by kind.
//
// Every backend stores one row per content fingerprint and implements Save as
// an atomic insert-if-absent, so concurrent runs ingesting overlapping data
// never both count the same fingerprint as stored.
package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Mode selects how Save treats existing rows.
type Mode string

const (
	// ModeAppend keeps existing rows and inserts only unseen fingerprints.
	ModeAppend Mode = "append"
	// ModeReplace removes every existing row before inserting, in the same
	// transaction.
	ModeReplace Mode = "replace"
)

// ParseMode converts a config string to a Mode. Empty means append.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeAppend:
		return ModeAppend, nil
	case ModeReplace:
		return ModeReplace, nil
	}
	return "", errors.Newf("unknown storage mode %q", s)
}

// Row is one persisted listing.
type Row struct {
	// Fingerprint is the content hash and primary key.
	Fingerprint string
	// Data is the transformed record encoded as JSON.
	Data []byte
	// Source names the input the row came from (file name or URL).
	Source string
	// CreatedAt is set by the backend when zero.
	CreatedAt time.Time
}

// SaveResult reports what one Save call did.
type SaveResult struct {
	// Inserted counts rows written by this call.
	Inserted int
	// Existing lists fingerprints that were already present when the insert
	// ran, typically because a concurrent run stored them first.
	Existing []string
}

// Repository is the contract the pipeline depends on.
type Repository interface {
	// Save inserts rows whose fingerprint is absent. In ModeReplace the table
	// is cleared first. The whole call is one transaction where the backend
	// supports it.
	Save(ctx context.Context, rows []Row, mode Mode) (SaveResult, error)
	// Known returns the subset of fps already stored.
	Known(ctx context.Context, fps []string) (map[string]bool, error)
	// Close releases the backend's resources.
	Close()
}

// Execer is implemented by SQL backends so DDL bootstrappers can run
// statements without knowing the concrete type.
type Execer interface {
	Exec(ctx context.Context, sql string) error
}

// Config is the backend-agnostic connection configuration.
type Config struct {
	// Kind selects the backend, e.g. "sqlite", "postgres", "memory".
	Kind string
	// DSN is the backend connection string (a Redis URL for "redis").
	DSN string
	// Table is the destination table (the key prefix for "redis").
	Table string
	// AutoCreateTable runs the registered DDL bootstrapper after opening.
	AutoCreateTable bool
	// BatchSize bounds rows per statement batch inside Save.
	BatchSize int
	// Logger receives progress lines. Nil disables logging.
	Logger *zap.Logger
}

// DefaultTable is used when Config.Table is empty.
const DefaultTable = "listings"

// DefaultBatchSize is used when Config.BatchSize is not positive.
const DefaultBatchSize = 500

// withDefaults fills unset fields.
func (c Config) withDefaults() Config {
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}
