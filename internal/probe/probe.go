// Package probe inspects an input table before it is ingested: which columns
// the loader sees, what each column holds, and how the headers line up with
// the configured field names.
package probe

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"propetl/internal/datasource"
	"propetl/internal/parser"
	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

// Column types reported by Inspect, narrowest first.
const (
	TypeInteger   = "integer"
	TypeBoolean   = "boolean"
	TypeReal      = "real"
	TypeDate      = "date"
	TypeTimestamp = "timestamp"
	TypeText      = "text"
)

// Options control inspection.
type Options struct {
	Parser parser.Options
	// Aliases and Required mirror the pipeline configuration.
	Aliases  map[string]string
	Required []string
	// SampleRows caps the rows used for type inference. Zero means all.
	SampleRows int
}

// Column describes one source column.
type Column struct {
	Header string `json:"header"`
	// Field is the name after header aliases.
	Field string `json:"field"`
	// Normalized is the lowercase ASCII identifier form of Header.
	Normalized string `json:"normalized"`
	Type       string `json:"type"`
	NonEmpty   int    `json:"non_empty"`
	Required   bool   `json:"required,omitempty"`
}

// Report is the outcome of Inspect.
type Report struct {
	Format    parser.Format `json:"format"`
	Delimiter string        `json:"delimiter,omitempty"`
	Rows      int           `json:"rows"`
	Skipped   int           `json:"skipped"`
	Columns   []Column      `json:"columns"`
	// MissingRequired lists required fields no column maps to.
	MissingRequired []string `json:"missing_required,omitempty"`
	// AliasConflicts lists headers left unrenamed because their alias target
	// was already a column.
	AliasConflicts []string `json:"alias_conflicts,omitempty"`
	// SuggestedAliases maps unmatched headers to the required field they
	// most likely carry.
	SuggestedAliases map[string]string `json:"suggested_aliases,omitempty"`
}

// Inspect loads blob and describes its columns. CSV input without a
// configured delimiter is sniffed first.
func Inspect(blob datasource.Blob, opt Options) (*Report, error) {
	format, err := parser.ResolveFormat(blob.Filename, blob.ContentType)
	if err != nil {
		return nil, err
	}
	rep := &Report{Format: format}
	if format == parser.FormatCSV {
		if opt.Parser.CSV.Comma == 0 {
			opt.Parser.CSV.Comma = SniffDelimiter(blob.Data)
		}
		rep.Delimiter = string(opt.Parser.CSV.Comma)
	}

	batch, err := parser.Load(blob.Data, blob.Filename, blob.ContentType, opt.Parser)
	if err != nil {
		return nil, err
	}
	rep.Rows = batch.Len()
	rep.Skipped = batch.Skipped

	headers := append([]string(nil), batch.Columns...)
	sample := batch.Rows
	if opt.SampleRows > 0 && len(sample) > opt.SampleRows {
		sample = sample[:opt.SampleRows]
	}
	rep.AliasConflicts = batch.Rename(opt.Aliases)

	for i, h := range headers {
		field := batch.Columns[i]
		vals := make([]string, 0, len(sample))
		for _, r := range sample {
			vals = append(vals, text(r[field]))
		}
		col := Column{
			Header:     h,
			Field:      field,
			Normalized: NormalizeFieldName(h),
			Type:       InferType(vals),
			NonEmpty:   len(nonEmptyTrimmed(vals)),
		}
		for _, req := range opt.Required {
			if records.SameField(req, field) {
				col.Required = true
				break
			}
		}
		rep.Columns = append(rep.Columns, col)
	}

	for _, req := range opt.Required {
		if _, ok := batch.Resolve(req); ok {
			continue
		}
		rep.MissingRequired = append(rep.MissingRequired, req)
		want := compact(req)
		for _, c := range rep.Columns {
			if c.Required || want == "" {
				continue
			}
			if strings.HasPrefix(compact(c.Header), want) {
				if rep.SuggestedAliases == nil {
					rep.SuggestedAliases = map[string]string{}
				}
				rep.SuggestedAliases[c.Header] = req
				break
			}
		}
	}
	return rep, nil
}

// SniffDelimiter picks the most frequent of , ; tab and | on the first
// non-blank line. Ties and lines without any candidate yield ','.
func SniffDelimiter(sample []byte) rune {
	var line []byte
	for _, l := range bytes.Split(sample, []byte("\n")) {
		if len(bytes.TrimSpace(l)) > 0 {
			line = l
			break
		}
	}
	best, bestN := ',', bytes.Count(line, []byte(","))
	for _, c := range []rune{';', '\t', '|'} {
		if n := bytes.Count(line, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}

// InferType guesses the narrowest type all non-empty values satisfy.
func InferType(values []string) string {
	nonEmpty := nonEmptyTrimmed(values)
	if len(nonEmpty) == 0 {
		return TypeText
	}
	if allMatch(nonEmpty, isInt) {
		return TypeInteger
	}
	if allMatch(nonEmpty, isBool) {
		return TypeBoolean
	}
	if allMatch(nonEmpty, isNumber) {
		return TypeReal
	}
	anyTime := false
	for _, v := range nonEmpty {
		ok, hasTime := parseDateOrTimestamp(v)
		if !ok {
			return TypeText
		}
		anyTime = anyTime || hasTime
	}
	if anyTime {
		return TypeTimestamp
	}
	return TypeDate
}

// NormalizeFieldName converts header text into a lowercase ASCII identifier:
// accents are stripped, runs of space, dash, dot and underscore become one
// underscore, and everything else is dropped. An empty result is "col".
func NormalizeFieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	ascii, _, _ := transform.String(t, s)

	var b strings.Builder
	prevUnderscore := false
	for _, r := range ascii {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevUnderscore = false
		case r == '_' || r == ' ' || r == '-' || r == '.':
			if !prevUnderscore {
				b.WriteRune('_')
				prevUnderscore = true
			}
		}
	}
	name := strings.Trim(b.String(), "_")
	if name == "" {
		return "col"
	}
	return name
}

func compact(s string) string {
	return strings.ReplaceAll(NormalizeFieldName(s), "_", "")
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}
	return fmt.Sprint(v)
}

func nonEmptyTrimmed(vals []string) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func allMatch(vals []string, fn func(string) bool) bool {
	for _, v := range vals {
		if !fn(v) {
			return false
		}
	}
	return true
}

func isBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "false", "t", "f", "yes", "no", "y", "n":
		return true
	}
	return false
}

func isInt(s string) bool {
	_, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	return err == nil
}

// isNumber accepts what the validator would parse as a number.
func isNumber(s string) bool {
	_, ok := builtin.ParseNumber(s)
	return ok
}

var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
}

// parseDateOrTimestamp reports whether s is a date, and whether it carries a
// time of day. Bare numbers are never dates here.
func parseDateOrTimestamp(s string) (ok bool, hasTime bool) {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true, true
		}
	}
	if _, isNum := builtin.ParseNumber(s); isNum {
		return false, false
	}
	if _, ok := builtin.ParseDate(s); ok {
		return true, false
	}
	return false, false
}
