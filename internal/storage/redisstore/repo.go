// Package redisstore stores listings as Redis string keys, one per fingerprint.
// Save uses SETNX so concurrent runs never both insert the same fingerprint.
// Replace mode deletes the key space with SCAN before inserting; unlike the
// SQL backends this is not atomic with the inserts.
package redisstore

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"propetl/internal/storage"
)

// Config holds Redis repository configuration.
type Config struct {
	URL       string // redis://[:password@]host:port/db
	Prefix    string // key prefix; keys are "<prefix>:<fingerprint>"
	BatchSize int
}

// Repository implements storage.Repository on a Redis client.
type Repository struct {
	client *redis.Client
	cfg    Config
	log    *zap.Logger
	now    func() time.Time
}

// entry is the JSON value stored under each key.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Source    string          `json:"source,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRepository parses the URL, connects, and pings the server.
func NewRepository(ctx context.Context, cfg Config, log *zap.Logger) (*Repository, func(), error) {
	if cfg.Prefix == "" {
		cfg.Prefix = storage.DefaultTable
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = storage.DefaultBatchSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, nil, errors.Wrap(err, "redis: parse url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, errors.Wrap(err, "redis: ping")
	}
	log.Debug("redis connected", zap.String("url", maskURL(cfg.URL)), zap.String("prefix", cfg.Prefix))

	r := &Repository{client: client, cfg: cfg, log: log, now: time.Now}
	return r, func() { _ = client.Close() }, nil
}

func (r *Repository) key(fp string) string { return r.cfg.Prefix + ":" + fp }

// Save inserts rows with SETNX, one pipeline per chunk.
func (r *Repository) Save(ctx context.Context, rows []storage.Row, mode storage.Mode) (storage.SaveResult, error) {
	if mode == storage.ModeReplace {
		if err := r.clear(ctx); err != nil {
			return storage.SaveResult{}, err
		}
	}
	now := r.now().UTC()
	return storage.LoadBatches(ctx, r.log, rows, r.cfg.BatchSize, func(ctx context.Context, chunk []storage.Row) ([]bool, error) {
		cmds := make([]*redis.BoolCmd, len(chunk))
		_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
			for i, row := range chunk {
				v, err := encodeEntry(row, now)
				if err != nil {
					return err
				}
				cmds[i] = p.SetNX(ctx, r.key(row.Fingerprint), v, 0)
			}
			return nil
		})
		if err != nil {
			return nil, errors.Wrap(err, "redis: setnx pipeline")
		}
		out := make([]bool, len(chunk))
		for i, c := range cmds {
			out[i] = c.Val()
		}
		return out, nil
	})
}

// Known returns the stored subset of fps using MGET.
func (r *Repository) Known(ctx context.Context, fps []string) (map[string]bool, error) {
	out := make(map[string]bool)
	for _, chunk := range storage.Chunks(fps, r.cfg.BatchSize) {
		keys := make([]string, len(chunk))
		for i, fp := range chunk {
			keys[i] = r.key(fp)
		}
		vals, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, errors.Wrap(err, "redis: mget")
		}
		for i, v := range vals {
			if v != nil {
				out[chunk[i]] = true
			}
		}
	}
	return out, nil
}

// clear deletes every key under the prefix.
func (r *Repository) clear(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.cfg.Prefix+":*", int64(r.cfg.BatchSize)).Iterator()
	batch := make([]string, 0, r.cfg.BatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.client.Del(ctx, batch...).Err()
		batch = batch[:0]
		return errors.Wrap(err, "redis: del")
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) >= r.cfg.BatchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "redis: scan")
	}
	return flush()
}

// Close closes the client.
func (r *Repository) Close() { _ = r.client.Close() }

func encodeEntry(row storage.Row, now time.Time) ([]byte, error) {
	created := row.CreatedAt
	if created.IsZero() {
		created = now
	}
	data := row.Data
	if len(data) == 0 {
		data = []byte("null")
	}
	b, err := json.Marshal(entry{Data: data, Source: row.Source, CreatedAt: created.UTC()})
	return b, errors.Wrapf(err, "redis: encode %s", row.Fingerprint)
}

// maskURL hides the password in a Redis URL for logging.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
