package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propetl/internal/storage"
)

func rows(fps ...string) []storage.Row {
	out := make([]storage.Row, len(fps))
	for i, fp := range fps {
		out[i] = storage.Row{Fingerprint: fp, Data: []byte(`{"fp":"` + fp + `"}`), Source: "test.csv"}
	}
	return out
}

func TestSave_AppendSkipsExisting(t *testing.T) {
	ctx := context.Background()
	r := New()

	res, err := r.Save(ctx, rows("a", "b"), storage.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, storage.SaveResult{Inserted: 2}, res)

	res, err = r.Save(ctx, rows("b", "c"), storage.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"b"}, res.Existing)

	known, err := r.Known(ctx, []string{"a", "c", "z"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"a": true, "c": true}, known)

	stored := r.Rows()
	require.Len(t, stored, 3)
	assert.False(t, stored[0].CreatedAt.IsZero())
	assert.Equal(t, "test.csv", stored[0].Source)
}

func TestSave_Replace(t *testing.T) {
	ctx := context.Background()
	r := New()
	_, err := r.Save(ctx, rows("a", "b"), storage.ModeAppend)
	require.NoError(t, err)

	res, err := r.Save(ctx, rows("b", "c"), storage.ModeReplace)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Inserted)
	assert.Equal(t, 2, r.Len())
	known, _ := r.Known(ctx, []string{"a"})
	assert.Empty(t, known)
}

// TestSave_ConcurrentOverlap checks that two writers racing on the same
// fingerprints never both count one as inserted.
func TestSave_ConcurrentOverlap(t *testing.T) {
	ctx := context.Background()
	r := New()
	fps := make([]string, 200)
	for i := range fps {
		fps[i] = fmt.Sprintf("fp%03d", i)
	}

	var wg sync.WaitGroup
	results := make([]storage.SaveResult, 4)
	for w := range results {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			res, err := r.Save(ctx, rows(fps...), storage.ModeAppend)
			assert.NoError(t, err)
			results[w] = res
		}(w)
	}
	wg.Wait()

	total := 0
	for _, res := range results {
		total += res.Inserted
		assert.Equal(t, len(fps), res.Inserted+len(res.Existing))
	}
	assert.Equal(t, len(fps), total)
	assert.Equal(t, len(fps), r.Len())
}

func TestFactoryRegistered(t *testing.T) {
	repo, err := storage.New(context.Background(), storage.Config{Kind: "memory"})
	require.NoError(t, err)
	defer repo.Close()
	assert.IsType(t, &Repository{}, repo)
}

func TestCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Save(ctx, rows("a"), storage.ModeAppend)
	assert.ErrorIs(t, err, context.Canceled)
}
