package storage

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
)

// DDLBootstrapper creates the listings table for one backend kind, typically
// with a CREATE TABLE IF NOT EXISTS statement run through the Execer.
type DDLBootstrapper func(ctx context.Context, ex Execer, table string) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. It is
// typically called from backend packages' init functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// HasDDL reports whether kind has a registered bootstrapper.
func HasDDL(kind string) bool {
	ddlMu.RLock()
	defer ddlMu.RUnlock()
	_, ok := ddlFns[kind]
	return ok
}

// EnsureTable runs the bootstrapper registered for cfg.Kind against repo.
func EnsureTable(ctx context.Context, cfg Config, repo Repository) error {
	cfg = cfg.withDefaults()

	ddlMu.RLock()
	fn, ok := ddlFns[cfg.Kind]
	ddlMu.RUnlock()
	if !ok {
		return errors.Newf("no DDL bootstrapper registered for storage.kind=%q", cfg.Kind)
	}
	ex, ok := repo.(Execer)
	if !ok {
		return errors.Newf("storage.kind=%q repository cannot execute DDL", cfg.Kind)
	}
	if err := fn(ctx, ex, cfg.Table); err != nil {
		return errors.Wrapf(err, "create table %s", cfg.Table)
	}
	return nil
}
