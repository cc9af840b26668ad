// Package parser turns raw uploaded bytes into a records.Batch. It resolves
// the input format from the declared content type (falling back to the
// filename extension) and delegates to the csv, xlsx, or html parser.
package parser

import (
	"bytes"
	"mime"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"

	csvparser "propetl/internal/parser/csv"
	htmlparser "propetl/internal/parser/html"
	xlsxparser "propetl/internal/parser/xlsx"
	"propetl/pkg/records"
)

// Format identifies one of the supported table encodings.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// Fatal loader errors. Callers match them with errors.Is.
var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrParse             = errors.New("parse error")
	ErrNoTableFound      = errors.New("no table found")
)

// contentTypes maps declared MIME types to formats. Some browsers send the
// Excel MIME type for CSV uploads, so it maps to csv.
var contentTypes = map[string]Format{
	"text/csv":                 FormatCSV,
	"application/csv":          FormatCSV,
	"application/vnd.ms-excel": FormatCSV,
	"text/html":                FormatHTML,
	"application/xhtml+xml":    FormatHTML,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": FormatXLSX,
}

var extensions = map[string]Format{
	".csv":  FormatCSV,
	".htm":  FormatHTML,
	".html": FormatHTML,
	".xlsx": FormatXLSX,
	".xlsm": FormatXLSX,
}

// Options carries per-format parser settings.
type Options struct {
	CSV  csvparser.Options
	XLSX xlsxparser.Options
}

// ResolveFormat picks the format for an input. The declared content type wins
// when it is recognized; otherwise the filename extension decides.
func ResolveFormat(filename, contentType string) (Format, error) {
	if ct := strings.TrimSpace(contentType); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
		if f, ok := contentTypes[strings.ToLower(ct)]; ok {
			return f, nil
		}
	}
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	if f, ok := extensions[ext]; ok {
		return f, nil
	}
	return "", errors.Wrapf(ErrUnsupportedFormat, "file %q (content type %q): expected CSV, HTML, or XLSX", filename, contentType)
}

// Load parses data into a batch. It fails with ErrUnsupportedFormat when no
// parser matches, ErrNoTableFound when an HTML document has no non-empty
// table, and ErrParse when the chosen parser cannot produce a header row.
func Load(data []byte, filename, contentType string, opt Options) (*records.Batch, error) {
	format, err := ResolveFormat(filename, contentType)
	if err != nil {
		return nil, err
	}

	var b *records.Batch
	switch format {
	case FormatCSV:
		b, err = csvparser.NewParser(opt.CSV).Parse(bytes.NewReader(data))
	case FormatXLSX:
		b, err = xlsxparser.Parse(bytes.NewReader(data), opt.XLSX)
	case FormatHTML:
		b, err = htmlparser.ParseTables(bytes.NewReader(data))
		if errors.Is(err, htmlparser.ErrNoTable) {
			return nil, errors.Mark(errors.Wrapf(err, "%s", filename), ErrNoTableFound)
		}
	}
	if err != nil {
		return nil, errors.Mark(errors.Wrapf(err, "parse %s as %s", filename, format), ErrParse)
	}
	return b, nil
}
