package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"propetl/internal/storage"
	"propetl/internal/storage/sqlstore"

	// Pure-Go SQLite driver registered as "sqlite".
	_ "modernc.org/sqlite"
)

// Dialect is the SQLite flavour of the listings schema.
var Dialect = sqlstore.Dialect{
	Name:        "sqlite",
	QuoteTable:  func(name string) string { return sqlstore.QuoteParts(name, sqlIdent) },
	Placeholder: sqlstore.Question,
	CreateTable: func(table string) string {
		return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fingerprint TEXT PRIMARY KEY,
	data        TEXT NOT NULL,
	source      TEXT,
	created_at  TIMESTAMP NOT NULL
)`, table)
	},
	InsertIfAbsent: func(table string) string {
		return fmt.Sprintf("INSERT INTO %s (fingerprint, data, source, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(fingerprint) DO NOTHING", table)
	},
}

// Repository is a SQLite-backed implementation of storage.Repository.
type Repository struct {
	*sqlstore.Store
}

// Open opens a SQLite handle limited to one connection. SQLite allows a single
// writer, and one connection also keeps ":memory:" databases shared.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewRepository opens a SQLite database using the provided DSN and returns a
// Repository plus a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, errors.New("sqlite: DSN must not be empty")
	}

	db, err := Open(cfg.DSN)
	if err != nil {
		return nil, nil, err
	}

	// Ping with a timeout to fail fast on invalid DSNs.
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, errors.Wrap(err, "sqlite: ping")
	}

	r := &Repository{Store: sqlstore.New(db, Dialect, storage.Config{
		Table:     cfg.Table,
		BatchSize: cfg.BatchSize,
		Logger:    log,
	})}
	return r, r.Store.Close, nil
}

// sqlIdent quotes one identifier segment with double quotes.
func sqlIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }
