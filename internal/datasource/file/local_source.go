// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	"propetl/internal/datasource"
)

// extraTypes covers extensions the platform MIME table may not know.
var extraTypes = map[string]string{
	".csv":  "text/csv",
	".xlsx": "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".xlsm": "application/vnd.ms-excel.sheet.macroEnabled.12",
	".htm":  "text/html",
	".html": "text/html",
}

// Local reads one file from disk.
type Local struct {
	path     string
	maxBytes int64
}

var _ datasource.Source = (*Local)(nil)

// NewLocal returns a source for path. maxBytes <= 0 disables the size cap.
func NewLocal(path string, maxBytes int64) *Local { return &Local{path: path, maxBytes: maxBytes} }

// Name returns the path.
func (l *Local) Name() string { return l.path }

// Fetch reads the file. A canceled context short-circuits before touching
// the filesystem. Filesystem errors keep their cause for errors.Is checks
// (e.g. os.ErrNotExist).
func (l *Local) Fetch(ctx context.Context) (datasource.Blob, error) {
	if err := ctx.Err(); err != nil {
		return datasource.Blob{}, err
	}
	f, err := os.Open(l.path)
	if err != nil {
		return datasource.Blob{}, errors.Wrapf(err, "open %s", l.path)
	}
	defer f.Close()

	data, err := datasource.ReadAll(f, l.maxBytes)
	if err != nil {
		return datasource.Blob{}, errors.Wrapf(err, "read %s", l.path)
	}
	name := filepath.Base(l.path)
	return datasource.Blob{Data: data, Filename: name, ContentType: ContentType(name)}, nil
}

// ContentType guesses the MIME type from the file extension. It returns ""
// when unknown.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	return mime.TypeByExtension(ext)
}
