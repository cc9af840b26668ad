package dedup

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"propetl/internal/fingerprint"
	"propetl/internal/storage"
	"propetl/internal/storage/memory"
	"propetl/pkg/records"
)

type failingLookup struct{}

func (failingLookup) Known(context.Context, []string) (map[string]bool, error) {
	return nil, errors.New("connection reset")
}

type countingLookup struct {
	calls int
	asked []string
}

func (c *countingLookup) Known(_ context.Context, fps []string) (map[string]bool, error) {
	c.calls++
	c.asked = append(c.asked, fps...)
	return map[string]bool{}, nil
}

func listing(suburb string, rent float64) records.Record {
	return records.Record{"Suburb": suburb, "WeeklyRent": rent, "Bedrooms": 3.0}
}

func TestFilterNew_FreshBatch(t *testing.T) {
	g := Guard{Store: memory.New(), Log: zaptest.NewLogger(t)}
	fresh, dups, err := g.FilterNew(context.Background(), []records.Record{listing("A", 650), listing("B", 700)})
	require.NoError(t, err)
	assert.Equal(t, 0, dups)
	require.Len(t, fresh, 2)
	assert.Equal(t, "A", fresh[0].Record["Suburb"])
	assert.Equal(t, fingerprint.Compute(listing("A", 650)), fresh[0].Fingerprint)
}

func TestFilterNew_InBatchCollisionFirstWins(t *testing.T) {
	first := records.Record{"Suburb": "A", "WeeklyRent": 650.0, "Note": "first"}
	again := records.Record{"suburb": " a ", "WeeklyRent": "650", "Note": "FIRST"}
	lookup := &countingLookup{}

	fresh, dups, err := Guard{Store: lookup}.FilterNew(context.Background(), []records.Record{first, again})
	require.NoError(t, err)
	assert.Equal(t, 1, dups)
	require.Len(t, fresh, 1)
	assert.Equal(t, "first", fresh[0].Record["Note"])
	assert.Len(t, lookup.asked, 1, "only unique fingerprints are looked up")
}

func TestFilterNew_DropsKnown(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	_, err := repo.Save(ctx, []storage.Row{{Fingerprint: string(fingerprint.Compute(listing("A", 650)))}}, storage.ModeAppend)
	require.NoError(t, err)

	fresh, dups, err := Guard{Store: repo}.FilterNew(ctx, []records.Record{listing("A", 650), listing("B", 700)})
	require.NoError(t, err)
	assert.Equal(t, 1, dups)
	require.Len(t, fresh, 1)
	assert.Equal(t, "B", fresh[0].Record["Suburb"])
}

func TestFilterNew_SkipStore(t *testing.T) {
	lookup := &countingLookup{}
	fresh, dups, err := Guard{Store: lookup, SkipStore: true}.FilterNew(context.Background(),
		[]records.Record{listing("A", 650), listing("A", 650)})
	require.NoError(t, err)
	assert.Equal(t, 0, lookup.calls)
	assert.Equal(t, 1, dups)
	assert.Len(t, fresh, 1)
}

func TestFilterNew_LookupError(t *testing.T) {
	_, _, err := Guard{Store: failingLookup{}}.FilterNew(context.Background(), []records.Record{listing("A", 650)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lookup known fingerprints")
}

func TestFilterNew_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := Guard{Store: memory.New()}.FilterNew(ctx, []records.Record{listing("A", 650)})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFilterNew_Empty(t *testing.T) {
	fresh, dups, err := Guard{}.FilterNew(context.Background(), nil)
	require.NoError(t, err)
	assert.Nil(t, fresh)
	assert.Zero(t, dups)
}

// Duplicates never exceed the input and fresh+duplicates covers it.
func TestFilterNew_Accounting(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	in := []records.Record{listing("A", 1), listing("B", 2), listing("A", 1), listing("C", 3)}
	_, err := repo.Save(ctx, []storage.Row{{Fingerprint: string(fingerprint.Compute(listing("C", 3)))}}, storage.ModeAppend)
	require.NoError(t, err)

	fresh, dups, err := Guard{Store: repo}.FilterNew(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, len(in), len(fresh)+dups)
	assert.Equal(t, 2, dups)
}
