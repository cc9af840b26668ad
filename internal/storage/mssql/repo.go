// Package mssql implements a Microsoft SQL Server repository on
// github.com/microsoft/go-mssqldb. Inserts use MERGE ... WITH (HOLDLOCK) so
// the existence check and the insert happen under one key-range lock.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"
	"go.uber.org/zap"

	"propetl/internal/storage"
	"propetl/internal/storage/sqlstore"
)

// Config holds MSSQL repository configuration.
type Config struct {
	DSN       string
	Table     string
	BatchSize int
}

// Dialect is the SQL Server flavour of the listings schema.
var Dialect = sqlstore.Dialect{
	Name:        "mssql",
	QuoteTable:  msFQN,
	Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	CreateTable: func(table string) string {
		return fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	fingerprint CHAR(32) NOT NULL PRIMARY KEY,
	data        NVARCHAR(MAX) NOT NULL,
	source      NVARCHAR(1024) NULL,
	created_at  DATETIME2 NOT NULL
)`, strings.ReplaceAll(table, "'", "''"), table)
	},
	InsertIfAbsent: func(table string) string {
		return fmt.Sprintf(`MERGE INTO %s WITH (HOLDLOCK) AS t
USING (SELECT @p1 AS fingerprint) AS s
ON t.fingerprint = s.fingerprint
WHEN NOT MATCHED THEN
	INSERT (fingerprint, data, source, created_at) VALUES (@p1, @p2, @p3, @p4);`, table)
	},
}

// Repository is an MSSQL-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Store
}

// New wraps an open handle; tests pass a sqlmock database here.
func New(db *sql.DB, cfg Config, log *zap.Logger) *Repository {
	return &Repository{Store: sqlstore.New(db, Dialect, storage.Config{
		Table:     cfg.Table,
		BatchSize: cfg.BatchSize,
		Logger:    log,
	})}
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, errors.Wrap(err, "mssql dsn")
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "sql.Open")
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "ping")
	}
	r := New(db, cfg, log)
	return r, r.Store.Close, nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.listings" to
// "[dbo].[listings]".
func msFQN(name string) string { return sqlstore.QuoteParts(name, msIdent) }
