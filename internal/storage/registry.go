package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

// Factory opens a Repository for a Config whose defaults are already applied.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	regMu     sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds (or replaces) the factory for kind. Backends call it from
// init.
func Register(kind string, f Factory) {
	regMu.Lock()
	defer regMu.Unlock()
	factories[kind] = f
}

// ListKinds returns the registered kinds, sorted. The slice is a copy.
func ListKinds() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// New opens the backend selected by cfg.Kind. When cfg.AutoCreateTable is set
// and the kind has a DDL bootstrapper, the table is created before returning.
func New(ctx context.Context, cfg Config) (Repository, error) {
	cfg = cfg.withDefaults()

	regMu.RLock()
	f, ok := factories[cfg.Kind]
	regMu.RUnlock()
	if !ok {
		return nil, errors.Newf("unsupported storage.kind=%s", cfg.Kind)
	}

	repo, err := f(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if cfg.AutoCreateTable && HasDDL(cfg.Kind) {
		if err := EnsureTable(ctx, cfg, repo); err != nil {
			repo.Close()
			return nil, err
		}
	}
	return repo, nil
}
