package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propetl/internal/storage"
)

// TestRegistrationUsesNewRepositoryHook verifies that the "sqlite" backend
// registered in init() goes through the newRepository hook and that Close is
// routed to the returned cleanup function.
func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config, _ *zap.Logger) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", DSN: "x.db", Table: "rentals"})
	require.NoError(t, err)
	assert.Equal(t, Config{DSN: "x.db", Table: "rentals", BatchSize: storage.DefaultBatchSize}, gotCfg)

	repo.Close()
	assert.True(t, closed)
}

// TestAutoCreateTable opens a real in-memory database through the factory
// and checks the bootstrapper created the listings table.
func TestAutoCreateTable(t *testing.T) {
	ctx := context.Background()
	repo, err := storage.New(ctx, storage.Config{Kind: "sqlite", DSN: ":memory:", AutoCreateTable: true})
	require.NoError(t, err)
	defer repo.Close()

	res, err := repo.Save(ctx, []storage.Row{{Fingerprint: "a", Data: []byte(`{}`)}}, storage.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
}
