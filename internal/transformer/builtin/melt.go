package builtin

import (
	"strings"

	"propetl/pkg/records"
)

// MeltOptions controls the wide-to-long reshape.
type MeltOptions struct {
	// IDName renames the identifier column (the first kept column). Empty keeps
	// the literal header.
	IDName string
	// VarName and ValueName name the output columns; defaults "variable" and
	// "value".
	VarName   string
	ValueName string
	// Counts coerces values to int64, with unparsable values becoming 0.
	Counts bool
}

// Melt reshapes a wide batch into long form: the first column is kept as the
// identifier and every other column becomes one (id, variable, value) row.
// Columns named "Unnamed: N" and rows with no values are dropped first.
// Output rows are ordered by column, then by input row.
func Melt(b *records.Batch, opt MeltOptions) *records.Batch {
	if opt.VarName == "" {
		opt.VarName = "variable"
	}
	if opt.ValueName == "" {
		opt.ValueName = "value"
	}

	var cols []string
	if b != nil {
		for _, c := range b.Columns {
			if !strings.HasPrefix(c, "Unnamed") {
				cols = append(cols, c)
			}
		}
	}
	if len(cols) == 0 {
		return &records.Batch{}
	}
	id := cols[0]
	idName := opt.IDName
	if idName == "" {
		idName = id
	}

	rows := make([]records.Record, 0, b.Len())
	for _, r := range b.Rows {
		empty := true
		for _, c := range cols {
			if !records.IsNull(r[c]) {
				empty = false
				break
			}
		}
		if !empty {
			rows = append(rows, r)
		}
	}

	out := &records.Batch{
		Columns: []string{idName, opt.VarName, opt.ValueName},
		Rows:    make([]records.Record, 0, len(rows)*(len(cols)-1)),
	}
	for _, c := range cols[1:] {
		for _, r := range rows {
			idv := r[id]
			if s, ok := idv.(string); ok {
				idv = strings.TrimSpace(s)
			}
			val := r[c]
			if opt.Counts {
				n, _ := ParseNumber(val)
				val = int64(n)
			}
			out.Rows = append(out.Rows, records.Record{
				idName:        idv,
				opt.VarName:   c,
				opt.ValueName: val,
			})
		}
	}
	return out
}
