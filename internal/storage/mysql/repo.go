// Package mysql provides a MySQL-backed storage.Repository using
// github.com/go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	driver "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"propetl/internal/storage"
	"propetl/internal/storage/sqlstore"
)

// Config holds MySQL repository configuration.
type Config struct {
	// DSN uses the driver format, e.g. "user:pass@tcp(localhost:3306)/propetl".
	DSN       string
	Table     string
	BatchSize int
}

// Dialect is the MySQL flavour of the listings schema. The insert uses a
// no-op ON DUPLICATE KEY UPDATE so an existing fingerprint reports zero
// affected rows without the blanket error suppression of INSERT IGNORE.
var Dialect = sqlstore.Dialect{
	Name:        "mysql",
	QuoteTable:  func(name string) string { return sqlstore.QuoteParts(name, myIdent) },
	Placeholder: sqlstore.Question,
	CreateTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fingerprint CHAR(32) NOT NULL PRIMARY KEY,
	data        JSON NOT NULL,
	source      VARCHAR(1024) NULL,
	created_at  DATETIME(6) NOT NULL
)`, table)
	},
	InsertIfAbsent: func(table string) string {
		return fmt.Sprintf("INSERT INTO %s (fingerprint, data, source, created_at) VALUES (?, ?, ?, ?) "+
			"ON DUPLICATE KEY UPDATE fingerprint = fingerprint", table)
	},
}

// Repository is a MySQL-backed implementation of storage.Repository.
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

// NewRepository parses the DSN, opens a pool, and pings it.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	dc, err := driver.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mysql dsn")
	}
	dc.ParseTime = true
	if dc.Loc == nil {
		dc.Loc = time.UTC
	}
	conn, err := driver.NewConnector(dc)
	if err != nil {
		return nil, nil, errors.Wrap(err, "mysql connector")
	}
	db := sql.OpenDB(conn)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "mysql: ping")
	}
	r := New(db, cfg, log)
	return r, r.Store.Close, nil
}

// myIdent quotes one identifier segment with backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }
