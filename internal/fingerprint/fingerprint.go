// Package fingerprint computes content hashes of cleaned records for
// cross-batch de-duplication.
//
// A fingerprint is independent of field order, of field-name case and
// surrounding whitespace, and of how a loader typed a value: the string "650"
// and the number 650.0 clean to the same token. The canonical serialization is
// hashed with XXH3-128 and rendered as 32 lowercase hex characters.
package fingerprint

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/xxh3"

	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

// Fingerprint is the hex-encoded XXH3-128 digest of a cleaned record.
type Fingerprint string

const (
	nullToken = "\x00null"
	fieldSep  = '\x1f'
	pairSep   = '\x1e'
)

type pair struct{ name, value string }

// Compute returns the fingerprint of r.
func Compute(r records.Record) Fingerprint {
	pairs := make([]pair, 0, len(r))
	for k, v := range r {
		pairs = append(pairs, pair{
			name:  strings.ToLower(strings.TrimSpace(k)),
			value: clean(v),
		})
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].name != pairs[j].name {
			return pairs[i].name < pairs[j].name
		}
		return pairs[i].value < pairs[j].value
	})

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(p.name)
		b.WriteByte(fieldSep)
		b.WriteString(p.value)
		b.WriteByte(pairSep)
	}
	sum := xxh3.HashString128(b.String())
	return Fingerprint(fmt.Sprintf("%016x%016x", sum.Hi, sum.Lo))
}

// ComputeAll fingerprints each record, preserving order.
func ComputeAll(rs []records.Record) []Fingerprint {
	out := make([]Fingerprint, len(rs))
	for i, r := range rs {
		out[i] = Compute(r)
	}
	return out
}

// clean renders one value as its canonical token.
func clean(v any) string {
	switch t := v.(type) {
	case nil:
		return nullToken
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nullToken
		}
		if f, ok := builtin.ParseNumber(s); ok {
			return number(f)
		}
		return strings.ToLower(s)
	case bool:
		return strconv.FormatBool(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	}
	if f, ok := builtin.ParseNumber(v); ok {
		return number(f)
	}
	return strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
