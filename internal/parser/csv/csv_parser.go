// Package csv parses delimited text uploads into a records.Batch.
//
// Input is decoded as UTF-8 when valid and as ISO-8859-1 otherwise, so byte
// level decode problems never abort a load. The reader is lenient with quotes;
// rows narrower than the header are padded with nulls and rows wider than the
// header are skipped and counted.
package csv

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"propetl/pkg/records"
)

// Options configures the CSV parser. The zero value is usable.
type Options struct {
	// Comma is the field delimiter. When zero, ',' is used.
	Comma rune

	// MaxLoggedSkips caps how many skipped rows are logged individually.
	// When zero, 20 is used.
	MaxLoggedSkips int

	// Logger receives skip diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Parser parses CSV input according to Options. It is safe to reuse across
// inputs but is not concurrency-safe.
type Parser struct{ opt Options }

// NewParser constructs a Parser with the provided Options.
func NewParser(opt Options) *Parser {
	if opt.Logger == nil {
		opt.Logger = zap.NewNop()
	}
	if opt.MaxLoggedSkips <= 0 {
		opt.MaxLoggedSkips = 20
	}
	return &Parser{opt: opt}
}

// Decode returns a reader yielding UTF-8 text for data. A UTF-8 BOM is
// dropped; bytes that are not valid UTF-8 are interpreted as Latin-1.
func Decode(data []byte) io.Reader {
	data = StripBOM(data)
	if utf8.Valid(data) {
		return bytes.NewReader(data)
	}
	return transform.NewReader(bytes.NewReader(data), charmap.ISO8859_1.NewDecoder())
}

// Parse reads all of r and returns the header plus one record per data row.
// It fails only when no header row can be read.
func (p *Parser) Parse(r io.Reader) (*records.Batch, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}

	cr := csv.NewReader(Decode(data))
	if p.opt.Comma != 0 {
		cr.Comma = p.opt.Comma
	}
	cr.LazyQuotes = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("read csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	headers := make([]string, len(header))
	copy(headers, header)

	b := &records.Batch{Columns: headers}

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line := 0
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				line = pe.StartLine
			}
			p.skip(b, line, err.Error())
			continue
		}
		// physical line of the row start; quoted fields may span lines
		line, _ := cr.FieldPos(0)
		if len(row) > len(headers) && !blankTail(row[len(headers):]) {
			p.skip(b, line, fmt.Sprintf("incorrect number of fields (expected %d, got %d)", len(headers), len(row)))
			continue
		}

		rec := make(records.Record, len(headers))
		for i, col := range headers {
			if i < len(row) {
				rec[col] = cellValue(row[i])
			} else {
				rec[col] = nil
			}
		}
		b.Append(rec, line)
	}
	return b, nil
}

func (p *Parser) skip(b *records.Batch, line int, reason string) {
	if b.Skipped < p.opt.MaxLoggedSkips {
		p.opt.Logger.Warn("skipping csv row", zap.Int("line", line), zap.String("reason", reason))
	}
	b.Skipped++
}

// cellValue trims surrounding whitespace and maps empty cells to nil.
func cellValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}

// blankTail reports whether every trailing extra cell is empty, which happens
// with trailing delimiters exported by spreadsheets.
func blankTail(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
