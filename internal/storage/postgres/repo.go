// Package postgres implements a Postgres repository using pgx v5. Inserts are
// queued as one pgx.Batch per chunk inside a single transaction and use
// ON CONFLICT (fingerprint) DO NOTHING for insert-if-absent.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"propetl/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN       string // connection string for pgxpool
	Table     string // optionally schema-qualified, e.g. "public.listings"
	BatchSize int
}

// Repository is a Postgres-backed implementation of storage.Repository.
type Repository struct {
	pool  *pgxpool.Pool
	cfg   Config
	table string
	log   *zap.Logger
	now   func() time.Time
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	if cfg.Table == "" {
		cfg.Table = storage.DefaultTable
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "pgxpool")
	}
	r := &Repository{pool: pool, cfg: cfg, table: pgFQN(cfg.Table), log: log, now: time.Now}
	return r, pool.Close, nil
}

// Save clears the table in ModeReplace, then inserts rows whose fingerprint
// is absent, all in one transaction.
func (r *Repository) Save(ctx context.Context, rows []storage.Row, mode storage.Mode) (res storage.SaveResult, err error) {
	if len(rows) == 0 && mode != storage.ModeReplace {
		return res, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return res, errors.Wrap(err, "postgres: begin tx")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if mode == storage.ModeReplace {
		if _, err = tx.Exec(ctx, clearSQL(r.table)); err != nil {
			return storage.SaveResult{}, pgError("clear table", err)
		}
	}

	insert := insertSQL(r.table)
	now := r.now().UTC()
	res, err = storage.LoadBatches(ctx, r.log, rows, r.cfg.BatchSize, func(ctx context.Context, chunk []storage.Row) ([]bool, error) {
		b := &pgx.Batch{}
		for _, row := range chunk {
			created := row.CreatedAt
			if created.IsZero() {
				created = now
			}
			b.Queue(insert, row.Fingerprint, json.RawMessage(row.Data), row.Source, created)
		}
		br := tx.SendBatch(ctx, b)
		out := make([]bool, len(chunk))
		for i := range chunk {
			ct, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return nil, pgError("insert "+chunk[i].Fingerprint, err)
			}
			out[i] = ct.RowsAffected() > 0
		}
		if err := br.Close(); err != nil {
			return nil, pgError("close batch", err)
		}
		return out, nil
	})
	if err != nil {
		return storage.SaveResult{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return storage.SaveResult{}, errors.Wrap(err, "postgres: commit")
	}
	return res, nil
}

// Known returns the stored subset of fps.
func (r *Repository) Known(ctx context.Context, fps []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, chunk := range storage.Chunks(fps, r.cfg.BatchSize) {
		rows, err := r.pool.Query(ctx, knownSQL(r.table), chunk)
		if err != nil {
			return nil, pgError("query fingerprints", err)
		}
		found, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, pgError("read fingerprints", err)
		}
		for _, fp := range found {
			out[fp] = true
		}
	}
	return out, nil
}

// Exec implements storage.Execer for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	_, err := r.pool.Exec(ctx, sql)
	return pgError("exec", err)
}

// Close closes the pool.
func (r *Repository) Close() { r.pool.Close() }

func createTableSQL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	fingerprint CHAR(32) PRIMARY KEY,
	data        JSONB NOT NULL,
	source      TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, table)
}

func insertSQL(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (fingerprint, data, source, created_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (fingerprint) DO NOTHING`, table)
}

func knownSQL(table string) string {
	return fmt.Sprintf("SELECT fingerprint FROM %s WHERE fingerprint = ANY($1)", table)
}

// clearSQL empties the table. TRUNCATE is transactional in Postgres.
func clearSQL(table string) string { return "TRUNCATE TABLE " + table }

// pgError adds the server detail to pgx errors. It returns nil for nil.
func pgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return errors.Wrapf(err, "postgres: %s: %s (%s)", op, pgErr.Detail, pgErr.SQLState())
	}
	return errors.Wrapf(err, "postgres: %s", op)
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.listings" to
// "public"."listings". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}
