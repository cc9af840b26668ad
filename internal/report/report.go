// Package report writes the per-run issue report as CSV or Parquet.
package report

import (
	"context"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/segmentio/parquet-go"

	"propetl/internal/transformer/builtin"
)

// Format selects the report encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatParquet Format = "parquet"
)

// ParseFormat accepts "csv", "parquet" or empty (csv).
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatCSV:
		return FormatCSV, nil
	case FormatParquet:
		return FormatParquet, nil
	}
	return "", errors.Newf("unknown report format %q", s)
}

// Header is the column order of every report.
var Header = []string{"row", "field", "code", "message"}

// Line is one report row. Tags name the Parquet columns.
type Line struct {
	Row     int64  `parquet:"row"`
	Field   string `parquet:"field"`
	Code    string `parquet:"code"`
	Message string `parquet:"message"`
}

// Writer places reports under Dir.
type Writer struct {
	Dir    string
	Format Format
	// Now defaults to time.Now.
	Now func() time.Time
}

// Name returns the report file name for a run started at ts.
func Name(ts time.Time, runID string, f Format) string {
	if f == "" {
		f = FormatCSV
	}
	prefix := strings.ReplaceAll(runID, "-", "")
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	return "ingest_report_" + ts.UTC().Format("20060102T150405Z") + "_" + prefix + "." + string(f)
}

// Write stores issues in emission order and returns the file path. The file
// is written under a temporary name and renamed once complete.
func (w Writer) Write(ctx context.Context, runID string, issues []builtin.RowIssue) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	dir := w.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", errors.Wrapf(err, "create report dir %s", dir)
	}
	format := w.Format
	if format == "" {
		format = FormatCSV
	}
	path := filepath.Join(dir, Name(now(), runID, format))

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", errors.Wrap(err, "create report")
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := tmp.Chmod(0o644); err != nil {
		_ = tmp.Close()
		return "", errors.Wrap(err, "chmod report")
	}
	switch format {
	case FormatParquet:
		err = writeParquet(tmp, issues)
	default:
		err = writeCSV(tmp, issues)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", errors.Wrapf(err, "write %s report", format)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", errors.Wrap(err, "rename report")
	}
	return path, nil
}

// Lines converts issues to report rows.
func Lines(issues []builtin.RowIssue) []Line {
	out := make([]Line, len(issues))
	for i, is := range issues {
		out[i] = Line{Row: int64(is.Row), Field: is.Field, Code: string(is.Code), Message: is.Message}
	}
	return out
}

func writeCSV(w io.Writer, issues []builtin.RowIssue) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, is := range issues {
		if err := cw.Write([]string{strconv.Itoa(is.Row), is.Field, string(is.Code), is.Message}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeParquet(w io.Writer, issues []builtin.RowIssue) error {
	pw := parquet.NewGenericWriter[Line](w)
	if _, err := pw.Write(Lines(issues)); err != nil {
		return err
	}
	return pw.Close()
}
