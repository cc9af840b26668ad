// Package sqlstore implements storage.Repository on top of database/sql for
// backends whose only differences are identifier quoting, placeholders, and
// the insert-if-absent statement. The sqlite, mysql, and mssql backends wrap
// it with their own Dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"propetl/internal/storage"
)

// Dialect captures the SQL differences between backends. Every statement
// builder receives the already-quoted table name.
type Dialect struct {
	// Name prefixes error messages, e.g. "sqlite".
	Name string
	// QuoteTable quotes a possibly schema-qualified table name.
	QuoteTable func(name string) string
	// Placeholder returns the bind marker for the 1-based argument n.
	Placeholder func(n int) string
	// CreateTable returns the idempotent DDL for the listings table.
	CreateTable func(table string) string
	// InsertIfAbsent returns a single-row insert taking (fingerprint, data,
	// source, created_at) that affects zero rows when the fingerprint exists.
	InsertIfAbsent func(table string) string
	// Clear returns the statement that empties the table inside a
	// transaction. Defaults to DELETE FROM.
	Clear func(table string) string
}

// Store is a database/sql backed storage.Repository.
type Store struct {
	db    *sql.DB
	d     Dialect
	table string
	batch int
	log   *zap.Logger
	now   func() time.Time
}

var (
	_ storage.Repository = (*Store)(nil)
	_ storage.Execer     = (*Store)(nil)
)

// New wraps an open database handle. The Store owns db and closes it in
// Close.
func New(db *sql.DB, d Dialect, cfg storage.Config) *Store {
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if d.Clear == nil {
		d.Clear = func(table string) string { return "DELETE FROM " + table }
	}
	return &Store{
		db:    db,
		d:     d,
		table: d.QuoteTable(cfg.Table),
		batch: cfg.BatchSize,
		log:   cfg.Logger.With(zap.String("backend", d.Name)),
		now:   time.Now,
	}
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Save runs one transaction: optionally clear the table, then insert each row
// unless its fingerprint already exists.
func (s *Store) Save(ctx context.Context, rows []storage.Row, mode storage.Mode) (res storage.SaveResult, err error) {
	if len(rows) == 0 && mode != storage.ModeReplace {
		return res, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrapf(err, "%s: begin tx", s.d.Name)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if mode == storage.ModeReplace {
		if _, err = tx.ExecContext(ctx, s.d.Clear(s.table)); err != nil {
			return storage.SaveResult{}, errors.Wrapf(err, "%s: clear table", s.d.Name)
		}
	}

	stmt, err := tx.PrepareContext(ctx, s.d.InsertIfAbsent(s.table))
	if err != nil {
		return storage.SaveResult{}, errors.Wrapf(err, "%s: prepare insert", s.d.Name)
	}
	defer stmt.Close()

	now := s.now().UTC()
	res, err = storage.LoadBatches(ctx, s.log, rows, s.batch, func(ctx context.Context, chunk []storage.Row) ([]bool, error) {
		out := make([]bool, len(chunk))
		for i, row := range chunk {
			created := row.CreatedAt
			if created.IsZero() {
				created = now
			}
			r, err := stmt.ExecContext(ctx, row.Fingerprint, string(row.Data), row.Source, created)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: insert %s", s.d.Name, row.Fingerprint)
			}
			n, err := r.RowsAffected()
			if err != nil {
				return nil, errors.Wrapf(err, "%s: rows affected", s.d.Name)
			}
			out[i] = n > 0
		}
		return out, nil
	})
	if err != nil {
		return storage.SaveResult{}, err
	}

	if err = tx.Commit(); err != nil {
		return storage.SaveResult{}, errors.Wrapf(err, "%s: commit", s.d.Name)
	}
	return res, nil
}

// Known queries the fingerprints in chunks of the configured batch size.
func (s *Store) Known(ctx context.Context, fps []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, chunk := range storage.Chunks(fps, s.batch) {
		marks := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, fp := range chunk {
			marks[i] = s.d.Placeholder(i + 1)
			args[i] = fp
		}
		q := fmt.Sprintf("SELECT fingerprint FROM %s WHERE fingerprint IN (%s)", s.table, strings.Join(marks, ", "))
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: query fingerprints", s.d.Name)
		}
		for rows.Next() {
			var fp string
			if err := rows.Scan(&fp); err != nil {
				rows.Close()
				return nil, errors.Wrapf(err, "%s: scan fingerprint", s.d.Name)
			}
			out[fp] = true
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "%s: read fingerprints", s.d.Name)
		}
	}
	return out, nil
}

// Exec runs a statement (typically DDL).
func (s *Store) Exec(ctx context.Context, q string) error {
	if strings.TrimSpace(q) == "" {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "%s: exec", s.d.Name)
	}
	return nil
}

// CreateTableSQL returns the dialect's DDL for table.
func (s *Store) CreateTableSQL() string { return s.d.CreateTable(s.table) }

// Close closes the database handle.
func (s *Store) Close() { _ = s.db.Close() }

// Bootstrapper returns a storage.DDLBootstrapper for d.
func Bootstrapper(d Dialect) storage.DDLBootstrapper {
	return func(ctx context.Context, ex storage.Execer, table string) error {
		return ex.Exec(ctx, d.CreateTable(d.QuoteTable(table)))
	}
}

// QuoteParts splits a dotted name and quotes each part with q.
func QuoteParts(name string, q func(string) string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = q(p)
	}
	return strings.Join(parts, ".")
}

// Question is the "?" placeholder style.
func Question(int) string { return "?" }
