// Package dedup filters validated records against fingerprints already held
// by the store.
package dedup

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"propetl/internal/fingerprint"
	"propetl/internal/storage"
	"propetl/pkg/records"
)

// Candidate is a record that passed the guard, paired with its fingerprint.
type Candidate struct {
	Fingerprint fingerprint.Fingerprint
	Record      records.Record
}

// Lookup reports which fingerprints are already stored.
// storage.Repository satisfies it.
type Lookup interface {
	Known(ctx context.Context, fps []string) (map[string]bool, error)
}

// Guard drops records whose fingerprint was seen earlier in the batch or is
// already stored. It only reads; the reservation itself happens inside
// storage.Repository.Save.
type Guard struct {
	Store Lookup
	// SkipStore disables the store lookup, used when the destination is
	// about to be replaced.
	SkipStore bool
	Log       *zap.Logger
}

// FilterNew returns the records not yet seen, in input order, and the number
// dropped as duplicates.
func (g Guard) FilterNew(ctx context.Context, recs []records.Record) ([]Candidate, int, error) {
	if len(recs) == 0 {
		return nil, 0, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	seen := make(map[fingerprint.Fingerprint]struct{}, len(recs))
	unique := make([]Candidate, 0, len(recs))
	for _, r := range recs {
		fp := fingerprint.Compute(r)
		if _, dup := seen[fp]; dup {
			continue
		}
		seen[fp] = struct{}{}
		unique = append(unique, Candidate{Fingerprint: fp, Record: r})
	}
	inBatch := len(recs) - len(unique)

	if g.SkipStore || g.Store == nil {
		return unique, inBatch, nil
	}

	fps := make([]string, len(unique))
	for i, c := range unique {
		fps[i] = string(c.Fingerprint)
	}
	known, err := g.Store.Known(ctx, fps)
	if err != nil {
		return nil, 0, errors.Wrap(err, "lookup known fingerprints")
	}

	fresh := unique[:0]
	for _, c := range unique {
		if !known[string(c.Fingerprint)] {
			fresh = append(fresh, c)
		}
	}
	dups := len(recs) - len(fresh)
	if g.Log != nil {
		g.Log.Debug("dedup guard",
			zap.Int("input", len(recs)),
			zap.Int("in_batch_duplicates", inBatch),
			zap.Int("known", len(unique)-len(fresh)),
			zap.Int("fresh", len(fresh)))
	}
	return fresh, dups, nil
}

var _ Lookup = storage.Repository(nil)
