package builtin

import (
	"math"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"propetl/pkg/records"
)

// Derived field names written by Enrich.
const (
	FieldListingYear    = "listing_year"
	FieldListingMonth   = "listing_month"
	FieldListingWeekday = "listing_weekday"
	FieldPricePerArea   = "price_per_area"
	FieldIsPremium      = "is_premium"
)

// dateLayouts are tried in order for string dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"02/01/2006",
	"2/1/2006",
	"02.01.2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2, 2006",
}

// Spreadsheet serial dates count days from this epoch. Only serials inside
// [minSerial, maxSerial] (1954..2119) are treated as dates.
var excelEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

const (
	minSerial = 20000
	maxSerial = 80000
)

// Enrich derives the listing feature set. It never fails: inputs that are
// absent or unparsable simply produce no derived field. Input records are not
// modified; Apply returns copies.
type Enrich struct {
	DateField      string
	PriceField     string
	AreaField      string
	CategoryField  string
	BedroomsField  string
	BathroomsField string
	// Numeric fields are coerced to float64 on the copies before derivation.
	Numeric []string
}

// DefaultEnrich returns the rental-listing feature set.
func DefaultEnrich() Enrich {
	return Enrich{
		DateField:      "ListingDate",
		PriceField:     "WeeklyRent",
		AreaField:      "FloorArea",
		CategoryField:  "Suburb",
		BedroomsField:  "Bedrooms",
		BathroomsField: "Bathrooms",
		Numeric:        []string{"FloorArea", "Bathrooms"},
	}
}

func (e Enrich) Apply(in []records.Record) []records.Record {
	if in == nil {
		return nil
	}
	out := make([]records.Record, len(in))
	for i, r := range in {
		out[i] = r.Clone()
	}
	out = Coerce{Fields: e.Numeric}.Apply(out)

	title := cases.Title(language.English)
	for _, r := range out {
		e.enrich(r, title)
		for k, v := range r {
			if f, ok := v.(float64); ok {
				r[k] = round2(f)
			}
		}
	}
	return out
}

func (e Enrich) enrich(r records.Record, title cases.Caser) {
	if e.DateField != "" {
		if v, ok := r.Get(e.DateField); ok {
			if t, ok := ParseDate(v); ok {
				r[FieldListingYear] = t.Year()
				r[FieldListingMonth] = int(t.Month())
				r[FieldListingWeekday] = (int(t.Weekday()) + 6) % 7
			}
		}
	}

	if e.PriceField != "" && e.AreaField != "" {
		pv, hasPrice := r.Get(e.PriceField)
		av, hasArea := r.Get(e.AreaField)
		if hasPrice || hasArea {
			ppa := 0.0
			price, okP := ParseNumber(pv)
			area, okA := ParseNumber(av)
			if okP && okA && area > 0 {
				if v := price / area; !math.IsInf(v, 0) {
					ppa = v
				}
			}
			r[FieldPricePerArea] = ppa
		}
	}

	if e.CategoryField != "" {
		if key, v, ok := r.Lookup(e.CategoryField); ok {
			if s, isStr := v.(string); isStr {
				r[key] = title.String(strings.TrimSpace(s))
			}
		}
	}

	if e.BedroomsField != "" && e.BathroomsField != "" {
		bv, _ := r.Get(e.BedroomsField)
		tv, _ := r.Get(e.BathroomsField)
		beds, okB := ParseNumber(bv)
		baths, okT := ParseNumber(tv)
		if okB && okT {
			r[FieldIsPremium] = beds >= 4 && baths >= 2
		}
	}
}

// ParseDate converts v to a UTC date. It accepts time.Time, spreadsheet
// serial numbers, and strings in any of the supported layouts.
func ParseDate(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return t.UTC(), !t.IsZero()
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if d, err := time.Parse(layout, s); err == nil {
				return d.UTC(), true
			}
		}
		if n, ok := ParseNumber(s); ok {
			return fromSerial(n)
		}
		return time.Time{}, false
	default:
		if n, ok := ParseNumber(t); ok {
			return fromSerial(n)
		}
		return time.Time{}, false
	}
}

func fromSerial(n float64) (time.Time, bool) {
	if n < minSerial || n > maxSerial {
		return time.Time{}, false
	}
	days := math.Floor(n)
	return excelEpoch.AddDate(0, 0, int(days)), true
}

// round2 leaves values too large to scale untouched.
func round2(f float64) float64 {
	if math.IsInf(f*100, 0) {
		return f
	}
	return math.Round(f*100) / 100
}
