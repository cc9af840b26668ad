// Package datasource defines where input bytes come from. A Source yields a
// Blob: the raw bytes plus the filename and content type the loader uses to
// pick a format.
package datasource

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
)

// Blob is one fetched input.
type Blob struct {
	Data        []byte
	Filename    string
	ContentType string
}

// Source fetches one input.
type Source interface {
	// Fetch reads the whole input. It returns ctx.Err() when ctx is done.
	Fetch(ctx context.Context) (Blob, error)
	// Name identifies the input in logs and stored rows (path or URL).
	Name() string
}

// ErrTooLarge is returned when an input exceeds the configured byte cap.
var ErrTooLarge = errors.New("input exceeds size limit")

// ReadAll reads r fully. When max > 0 and r holds more than max bytes it
// returns ErrTooLarge.
func ReadAll(r io.Reader, max int64) ([]byte, error) {
	if max <= 0 {
		return io.ReadAll(r)
	}
	b, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > max {
		return nil, errors.Wrapf(ErrTooLarge, "more than %d bytes", max)
	}
	return b, nil
}
