// Package memory provides an in-process storage.Repository. It backs tests
// and dry runs; data does not survive the process.
package memory

import (
	"context"
	"sync"
	"time"

	"propetl/internal/storage"
)

func init() {
	storage.Register("memory", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return New(), nil
	})
}

// Repository keeps rows in a map keyed by fingerprint. A single mutex makes
// Save atomic with respect to concurrent callers.
type Repository struct {
	mu   sync.Mutex
	rows map[string]storage.Row
	// order records insertion order for Rows.
	order []string
	now   func() time.Time
}

var _ storage.Repository = (*Repository)(nil)

// New returns an empty repository.
func New() *Repository {
	return &Repository{rows: map[string]storage.Row{}, now: time.Now}
}

func (r *Repository) Save(ctx context.Context, rows []storage.Row, mode storage.Mode) (storage.SaveResult, error) {
	if err := ctx.Err(); err != nil {
		return storage.SaveResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if mode == storage.ModeReplace {
		r.rows = make(map[string]storage.Row, len(rows))
		r.order = r.order[:0]
	}
	var res storage.SaveResult
	for _, row := range rows {
		if _, ok := r.rows[row.Fingerprint]; ok {
			res.Existing = append(res.Existing, row.Fingerprint)
			continue
		}
		if row.CreatedAt.IsZero() {
			row.CreatedAt = r.now().UTC()
		}
		r.rows[row.Fingerprint] = row
		r.order = append(r.order, row.Fingerprint)
		res.Inserted++
	}
	return res, nil
}

func (r *Repository) Known(ctx context.Context, fps []string) (map[string]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]bool)
	for _, fp := range fps {
		if _, ok := r.rows[fp]; ok {
			out[fp] = true
		}
	}
	return out, nil
}

// Rows returns a copy of the stored rows in insertion order.
func (r *Repository) Rows() []storage.Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]storage.Row, 0, len(r.order))
	for _, fp := range r.order {
		out = append(out, r.rows[fp])
	}
	return out
}

// Len returns the number of stored rows.
func (r *Repository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *Repository) Close() {}
