package mssql

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"propetl/internal/storage"
)

func newMock(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	r := New(db, Config{Table: "dbo.listings"}, zap.NewNop())
	t.Cleanup(func() {
		mock.ExpectClose()
		r.Close()
		assert.NoError(t, mock.ExpectationsWereMet())
	})
	return r, mock
}

func TestSave_MergeInsertIfAbsent(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(Dialect.InsertIfAbsent("[dbo].[listings]"))
	prep.ExpectExec().WithArgs("a", `{}`, "", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	prep.ExpectExec().WithArgs("a2", `{}`, "", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	res, err := r.Save(context.Background(), []storage.Row{
		{Fingerprint: "a", Data: []byte(`{}`)},
		{Fingerprint: "a2", Data: []byte(`{}`)},
	}, storage.ModeAppend)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Inserted)
	assert.Equal(t, []string{"a2"}, res.Existing)
}

func TestKnown_NamedPlaceholders(t *testing.T) {
	r, mock := newMock(t)

	mock.ExpectQuery("SELECT fingerprint FROM [dbo].[listings] WHERE fingerprint IN (@p1, @p2)").
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"fingerprint"}).AddRow("b"))

	known, err := r.Known(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"b": true}, known)
}

func TestCreateTableSQL(t *testing.T) {
	r, _ := newMock(t)
	ddl := r.CreateTableSQL()
	assert.Contains(t, ddl, "IF OBJECT_ID(N'[dbo].[listings]', N'U') IS NULL")
	assert.Contains(t, ddl, "CREATE TABLE [dbo].[listings]")
	assert.Contains(t, ddl, "fingerprint CHAR(32) NOT NULL PRIMARY KEY")
}

func TestMsIdent(t *testing.T) {
	assert.Equal(t, "[a]]b]", msIdent("a]b"))
	assert.Equal(t, "[dbo].[listings]", msFQN("dbo.listings"))
}

func TestRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var got Config
	closed := false
	newRepository = func(ctx context.Context, cfg Config, _ *zap.Logger) (*Repository, func(), error) {
		got = cfg
		return &Repository{}, func() { closed = true }, nil
	}

	repo, err := storage.New(context.Background(), storage.Config{Kind: "mssql", DSN: "sqlserver://x", Table: "dbo.rentals"})
	require.NoError(t, err)
	assert.Equal(t, "dbo.rentals", got.Table)
	repo.Close()
	assert.True(t, closed)
}
