// Package builtin contains the record-level rules of the ingestion pipeline:
// schema validation, numeric coercion, in-batch duplicate detection, feature
// enrichment, and the wide-to-long melt utility.
//
// DeDup finds in-batch duplicates by a composite business key. The first
// occurrence of each key wins; every later occurrence is a duplicate. Keys
// are built from the configured fields as strings (nil -> "\x00") joined by
// an unlikely separator, with numbers formatted canonically so "650" and
// 650.0 collide. Run it after numeric coercion so types are consistent.
package builtin

import (
	"strconv"
	"strings"
	"time"

	"propetl/pkg/records"
)

// DeDup implements keep-first duplicate detection over a composite key.
type DeDup struct {
	// Keys are the field names forming the business key, e.g.
	// ["Suburb","WeeklyRent","Bedrooms"]. Names are matched with
	// records.SameField.
	Keys []string
}

// Duplicates returns the input indexes of every record whose key was already
// seen earlier in the slice, in ascending order. Records missing a key field
// still take part; the absent value keys as null.
func (d DeDup) Duplicates(in []records.Record) []int {
	if len(in) == 0 || len(d.Keys) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	var dups []int
	for i, r := range in {
		k := d.keyOf(r)
		if _, ok := seen[k]; ok {
			dups = append(dups, i)
			continue
		}
		seen[k] = struct{}{}
	}
	return dups
}

// Apply returns the records that survive keep-first de-duplication, in input
// order.
func (d DeDup) Apply(in []records.Record) []records.Record {
	dups := d.Duplicates(in)
	if len(dups) == 0 {
		return in
	}
	out := make([]records.Record, 0, len(in)-len(dups))
	j := 0
	for i, r := range in {
		if j < len(dups) && dups[j] == i {
			j++
			continue
		}
		out = append(out, r)
	}
	return out
}

func (d DeDup) keyOf(r records.Record) string {
	var b strings.Builder
	for i, k := range d.Keys {
		if i > 0 {
			b.WriteByte('\x1f')
		}
		v, _ := r.Get(k)
		b.WriteString(keyValue(v))
	}
	return b.String()
}

// keyValue renders a value for key comparison.
func keyValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "\x00"
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "\x00"
		}
		if f, ok := ParseNumber(s); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return s
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		if f, ok := ParseNumber(t); ok {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
		return "\x00"
	}
}
