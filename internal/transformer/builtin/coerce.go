package builtin

import (
	"math"
	"strconv"
	"strings"

	"propetl/pkg/records"
)

// ParseNumber converts v to a finite float64. Strings may carry thousands
// separators ("1,200") and surrounding whitespace. It reports false for nil,
// blank strings, NaN/Inf, and anything that is not numeric.
func ParseNumber(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if s == "" {
			return 0, false
		}
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = n
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// Coerce rewrites numeric-looking values of the listed fields as float64.
// Values that do not parse are left untouched. Field names are matched with
// records.SameField.
type Coerce struct {
	Fields []string
}

// Apply coerces in place and returns in.
func (c Coerce) Apply(in []records.Record) []records.Record {
	if len(c.Fields) == 0 {
		return in
	}
	for _, r := range in {
		for _, field := range c.Fields {
			key, v, ok := r.Lookup(field)
			if !ok || v == nil {
				continue
			}
			if _, isStr := v.(string); !isStr {
				continue
			}
			if f, ok := ParseNumber(v); ok {
				r[key] = f
			}
		}
	}
	return in
}
