package storage

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// InsertFn inserts one chunk of rows and reports, per row, whether it was
// written (true) or skipped because its fingerprint already existed (false).
// Backends call it inside their Save transaction.
type InsertFn func(ctx context.Context, chunk []Row) ([]bool, error)

// LoadBatches splits rows into chunks of batchSize and calls insert for each,
// accumulating a SaveResult. It stops at the first error or when ctx is done.
// A progress line is logged after every chunk.
func LoadBatches(
	ctx context.Context,
	log *zap.Logger,
	rows []Row,
	batchSize int,
	insert InsertFn,
) (SaveResult, error) {
	var res SaveResult
	if batchSize <= 0 {
		return res, errors.New("batchSize must be > 0")
	}
	if insert == nil {
		return res, errors.New("insert must not be nil")
	}
	if log == nil {
		log = zap.NewNop()
	}

	var (
		batches   int
		start     = time.Now()
		lastFlush = start
	)
	for lo := 0; lo < len(rows); lo += batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hi := min(lo+batchSize, len(rows))
		chunk := rows[lo:hi]

		written, err := insert(ctx, chunk)
		if err != nil {
			log.Warn("insert batch failed",
				zap.Int("batch", batches+1),
				zap.Int("inserted_total", res.Inserted),
				zap.Error(err))
			return res, err
		}
		if len(written) != len(chunk) {
			return res, errors.Newf("insert reported %d results for %d rows", len(written), len(chunk))
		}

		n := 0
		for i, ok := range written {
			if ok {
				n++
				continue
			}
			res.Existing = append(res.Existing, chunk[i].Fingerprint)
		}
		res.Inserted += n
		batches++

		now := time.Now()
		since := now.Sub(lastFlush)
		rps := 0.0
		if since > 0 {
			rps = float64(len(chunk)) / since.Seconds()
		}
		log.Debug("batch stored",
			zap.Int("batch", batches),
			zap.Float64("rps", rps),
			zap.Int("inserted", n),
			zap.Int("existing", len(chunk)-n),
			zap.Int("inserted_total", res.Inserted),
			zap.Duration("elapsed", now.Sub(start).Truncate(time.Millisecond)))
		lastFlush = now
	}
	return res, nil
}

// Chunks splits fps into slices of at most size elements for IN-list queries.
func Chunks(fps []string, size int) [][]string {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]string
	for lo := 0; lo < len(fps); lo += size {
		out = append(out, fps[lo:min(lo+size, len(fps))])
	}
	return out
}
