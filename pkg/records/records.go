// Package records defines the row model shared by every pipeline stage.
//
// A Record is a field/value mapping produced by a parser. Values are plain Go
// scalars: string, float64, int, int64, bool, time.Time, or nil for an
// absent/null cell. A Batch keeps the literal header order of the source next
// to its rows so the mapping stays ordered even though Record itself is a map.
package records

import (
	"sort"
	"strings"
)

// Record is one logical row keyed by field name.
type Record map[string]any

// Clone returns a shallow copy of r. Scalar values make this a full copy for
// all value kinds parsers produce.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Lookup finds the value stored under a field name, matching names
// case-insensitively after trimming. It returns the literal key used in r.
func (r Record) Lookup(name string) (key string, val any, ok bool) {
	if v, exists := r[name]; exists {
		return name, v, true
	}
	for k, v := range r {
		if SameField(k, name) {
			return k, v, true
		}
	}
	return "", nil, false
}

// Get is Lookup without the key.
func (r Record) Get(name string) (any, bool) {
	_, v, ok := r.Lookup(name)
	return v, ok
}

// IsNull reports whether v represents an absent cell: nil or a string that is
// empty after trimming.
func IsNull(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	default:
		return false
	}
}

// SameField compares two field names the way every stage does: trimmed and
// case-insensitive.
func SameField(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Batch is an ordered set of rows sharing one header.
type Batch struct {
	// Columns are the literal header values in source order.
	Columns []string
	// Rows are the data rows in source order.
	Rows []Record
	// Lines holds the 1-based, header-inclusive source line of each row.
	// When it does not parallel Rows, rows are numbered from FirstDataLine.
	Lines []int
	// Skipped counts source rows the parser could not turn into a record.
	Skipped int
}

// FirstDataLine is the line of the first data row in a source with a one-line
// header.
const FirstDataLine = 2

// Append adds rec, read from the given source line.
func (b *Batch) Append(rec Record, line int) {
	b.Rows = append(b.Rows, rec)
	b.Lines = append(b.Lines, line)
}

// Line returns the source line of row i.
func (b *Batch) Line(i int) int {
	if b != nil && len(b.Lines) == len(b.Rows) && i >= 0 && i < len(b.Lines) {
		return b.Lines[i]
	}
	return i + FirstDataLine
}

// Len returns the number of data rows.
func (b *Batch) Len() int {
	if b == nil {
		return 0
	}
	return len(b.Rows)
}

// Resolve returns the literal column name that matches name, or false when
// the batch has no such column.
func (b *Batch) Resolve(name string) (string, bool) {
	if b == nil {
		return "", false
	}
	for _, c := range b.Columns {
		if SameField(c, name) {
			return c, true
		}
	}
	return "", false
}

// Rename rewrites column names (and the matching record keys) using aliases,
// which maps a source header to its logical name. Headers are matched with
// SameField. Columns without an alias are left as-is. A rename whose target
// matches any source header, or was claimed by an earlier header, is skipped;
// the skipped headers are returned in column order.
func (b *Batch) Rename(aliases map[string]string) (skipped []string) {
	if b == nil || len(aliases) == 0 {
		return nil
	}
	froms := make([]string, 0, len(aliases))
	for from := range aliases {
		froms = append(froms, from)
	}
	sort.Strings(froms)

	taken := make(map[string]bool, len(b.Columns))
	for _, col := range b.Columns {
		taken[fold(col)] = true
	}
	renames := make(map[string]string, len(aliases))
	for i, col := range b.Columns {
		for _, from := range froms {
			to := aliases[from]
			if to == "" || col == to || !SameField(col, from) {
				continue
			}
			if taken[fold(to)] && !SameField(col, to) {
				skipped = append(skipped, col)
				break
			}
			taken[fold(to)] = true
			renames[col] = to
			b.Columns[i] = to
			break
		}
	}
	if len(renames) == 0 {
		return skipped
	}
	for _, r := range b.Rows {
		for from, to := range renames {
			if v, ok := r[from]; ok {
				delete(r, from)
				r[to] = v
			}
		}
	}
	return skipped
}

func fold(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
