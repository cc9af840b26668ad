package builtin

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"propetl/pkg/records"
)

// IssueCode is the closed set of rule violations a row can carry.
type IssueCode string

const (
	CodeMissingColumn   IssueCode = "missing_column"
	CodeMissingRequired IssueCode = "missing_required"
	CodeInvalidNumber   IssueCode = "invalid_number"
	CodeInvalidInteger  IssueCode = "invalid_integer"
	CodeOutOfRange      IssueCode = "out_of_range"
	CodeDuplicate       IssueCode = "duplicate"
)

// Valid reports whether c is one of the defined codes.
func (c IssueCode) Valid() bool {
	switch c {
	case CodeMissingColumn, CodeMissingRequired, CodeInvalidNumber,
		CodeInvalidInteger, CodeOutOfRange, CodeDuplicate:
		return true
	}
	return false
}

// SchemaRow is the row number used for issues about the batch schema rather
// than a particular row.
const SchemaRow = -1

// RowIssue is one rule violation tied to a row and field.
type RowIssue struct {
	Row     int       `json:"row"`
	Field   string    `json:"field"`
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

// ValidationSummary counts one validation pass. Accepted+Rejected == Total.
type ValidationSummary struct {
	Total      int `json:"total"`
	Accepted   int `json:"accepted"`
	Rejected   int `json:"rejected"`
	Duplicates int `json:"duplicates"`
}

// RangeRule bounds a numeric field to [Min, Max].
type RangeRule struct {
	Field string  `json:"field"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

// Rules configures the validator.
type Rules struct {
	// Required fields must exist as columns and hold a value in every row.
	Required []string
	// Ranges are checked in order; values are coerced to float64 and written
	// back when they parse.
	Ranges []RangeRule
	// Integer fields must hold whole numbers.
	Integer []string
	// DuplicateKey is the composite key for in-batch duplicate detection.
	DuplicateKey []string
}

// DefaultRules returns the rental-listing rule set.
func DefaultRules() Rules {
	return Rules{
		Required: []string{"Suburb", "WeeklyRent", "DaysOnMarket", "Bedrooms"},
		Ranges: []RangeRule{
			{Field: "WeeklyRent", Min: 100, Max: 10000},
			{Field: "DaysOnMarket", Min: 0, Max: 730},
			{Field: "Bedrooms", Min: 0, Max: 12},
		},
		Integer:      []string{"Bedrooms"},
		DuplicateKey: []string{"Suburb", "WeeklyRent", "Bedrooms"},
	}
}

// RangesFromMap converts an unordered field -> [min,max] map into rules. Fields
// listed in order come first in that order; the rest follow alphabetically.
func RangesFromMap(m map[string][2]float64, order []string) []RangeRule {
	out := make([]RangeRule, 0, len(m))
	used := make(map[string]bool, len(m))
	for _, f := range order {
		for k, lim := range m {
			if !used[k] && records.SameField(k, f) {
				out = append(out, RangeRule{Field: k, Min: lim[0], Max: lim[1]})
				used[k] = true
			}
		}
	}
	rest := make([]string, 0, len(m))
	for k := range m {
		if !used[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		out = append(out, RangeRule{Field: k, Min: m[k][0], Max: m[k][1]})
	}
	return out
}

// Validator applies Rules to a batch. It is stateless and safe for concurrent
// use.
type Validator struct {
	Rules Rules
}

// Validate checks every row of b and returns the rows without issues, all
// issues in emission order, and the summary.
//
// When a required column is missing entirely the whole batch is rejected and
// only missing_column issues are returned. Otherwise each row is checked for
// required values, numeric ranges, and integer fields, then the batch is
// scanned for duplicate keys. Any issue rejects its row. Range and integer
// fields that parse are normalized to float64 in place.
func (v Validator) Validate(b *records.Batch) ([]records.Record, []RowIssue, ValidationSummary) {
	total := b.Len()
	var issues []RowIssue

	for _, f := range v.Rules.Required {
		if _, ok := b.Resolve(f); !ok {
			issues = append(issues, RowIssue{
				Row:     SchemaRow,
				Field:   f,
				Code:    CodeMissingColumn,
				Message: fmt.Sprintf("Required column '%s' not found", f),
			})
		}
	}
	if len(issues) > 0 {
		return nil, issues, ValidationSummary{Total: total, Rejected: total}
	}

	required := v.resolve(b, v.Rules.Required)
	integers := v.resolve(b, v.Rules.Integer)
	type rangeCol struct {
		RangeRule
		col      string
		required bool
	}
	var ranges []rangeCol
	ranged := make(map[string]bool, len(v.Rules.Ranges))
	for _, rr := range v.Rules.Ranges {
		ranged[strings.ToLower(strings.TrimSpace(rr.Field))] = true
		if col, ok := b.Resolve(rr.Field); ok {
			rc := rangeCol{RangeRule: rr, col: col}
			for _, req := range required {
				if req.col == col {
					rc.required = true
					break
				}
			}
			ranges = append(ranges, rc)
		}
	}

	bad := make([]bool, total)
	flag := func(i int, field string, code IssueCode, msg string) {
		issues = append(issues, RowIssue{Row: b.Line(i), Field: field, Code: code, Message: msg})
		bad[i] = true
	}

	for i, rec := range b.Rows {
		for _, rc := range required {
			if records.IsNull(rec[rc.col]) {
				flag(i, rc.field, CodeMissingRequired, "Missing value for "+rc.field)
			}
		}

		for _, rr := range ranges {
			raw := rec[rr.col]
			if records.IsNull(raw) {
				// a blank required number is also unparsable; blank optional
				// numbers are simply absent
				if rr.required {
					flag(i, rr.Field, CodeInvalidNumber, "Cannot parse number from ''")
				}
				continue
			}
			n, ok := ParseNumber(raw)
			if !ok {
				flag(i, rr.Field, CodeInvalidNumber, fmt.Sprintf("Cannot parse number from '%v'", raw))
				continue
			}
			if n < rr.Min || n > rr.Max {
				flag(i, rr.Field, CodeOutOfRange, fmt.Sprintf("%s=%s not in [%s, %s]",
					rr.Field, formatNum(n), formatNum(rr.Min), formatNum(rr.Max)))
			}
			rec[rr.col] = n
		}

		for _, ic := range integers {
			raw := rec[ic.col]
			if records.IsNull(raw) {
				continue
			}
			n, ok := ParseNumber(raw)
			if !ok {
				// ranged fields already reported the parse failure
				if !ranged[strings.ToLower(strings.TrimSpace(ic.field))] {
					flag(i, ic.field, CodeInvalidNumber, fmt.Sprintf("Cannot parse number from '%v'", raw))
				}
				continue
			}
			if n != math.Trunc(n) {
				flag(i, ic.field, CodeInvalidInteger, ic.field+" must be an integer")
			}
		}
	}

	duplicates := 0
	if keys, ok := v.resolveAll(b, v.Rules.DuplicateKey); ok && len(keys) > 0 {
		field := strings.Join(v.Rules.DuplicateKey, "|")
		msg := "Duplicate based on " + strings.Join(v.Rules.DuplicateKey, ", ")
		for _, i := range (DeDup{Keys: keys}).Duplicates(b.Rows) {
			flag(i, field, CodeDuplicate, msg)
			duplicates++
		}
	}

	accepted := make([]records.Record, 0, total)
	for i, rec := range b.Rows {
		if !bad[i] {
			accepted = append(accepted, rec)
		}
	}
	return accepted, issues, ValidationSummary{
		Total:      total,
		Accepted:   len(accepted),
		Rejected:   total - len(accepted),
		Duplicates: duplicates,
	}
}

type fieldCol struct {
	field string
	col   string
}

// resolve maps logical fields to batch columns, dropping unknown ones.
func (v Validator) resolve(b *records.Batch, fields []string) []fieldCol {
	out := make([]fieldCol, 0, len(fields))
	for _, f := range fields {
		if col, ok := b.Resolve(f); ok {
			out = append(out, fieldCol{field: f, col: col})
		}
	}
	return out
}

// resolveAll maps fields to columns and reports false if any is missing.
func (v Validator) resolveAll(b *records.Batch, fields []string) ([]string, bool) {
	cols := make([]string, 0, len(fields))
	for _, f := range fields {
		col, ok := b.Resolve(f)
		if !ok {
			return nil, false
		}
		cols = append(cols, col)
	}
	return cols, true
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
