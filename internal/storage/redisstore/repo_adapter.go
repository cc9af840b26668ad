package redisstore

import (
	"context"

	"go.uber.org/zap"

	"propetl/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
var newRepository = NewRepository

type wrappedRepo struct {
	*Repository
	closeFn func()
}

var _ storage.Repository = (*wrappedRepo)(nil)

func (w *wrappedRepo) Close() {
	if w.closeFn != nil {
		w.closeFn()
	}
}

// init registers the "redis" backend. Table becomes the key prefix. There is
// no DDL step.
func init() {
	storage.Register("redis", func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		r, closeFn, err := newRepository(ctx, Config{
			URL:       cfg.DSN,
			Prefix:    cfg.Table,
			BatchSize: cfg.BatchSize,
		}, cfg.Logger.With(zap.String("backend", "redis"), zap.String("prefix", cfg.Table)))
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})
}
