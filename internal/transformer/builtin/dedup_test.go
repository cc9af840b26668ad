package builtin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"propetl/pkg/records"
)

func TestDeDup_KeepFirst(t *testing.T) {
	in := []records.Record{
		{"Suburb": "A", "WeeklyRent": 650.0, "Bedrooms": 3.0, "n": 1},
		{"Suburb": "A", "WeeklyRent": "650", "Bedrooms": 3, "n": 2},
		{"Suburb": "B", "WeeklyRent": 650.0, "Bedrooms": 3.0, "n": 3},
		{"Suburb": " A ", "WeeklyRent": "650.00", "Bedrooms": "3", "n": 4},
	}
	d := DeDup{Keys: []string{"Suburb", "WeeklyRent", "Bedrooms"}}

	assert.Equal(t, []int{1, 3}, d.Duplicates(in))

	out := d.Apply(in)
	assert.Len(t, out, 2)
	assert.Equal(t, 1, out[0]["n"])
	assert.Equal(t, 3, out[1]["n"])
}

func TestDeDup_NullsAreKeyValues(t *testing.T) {
	in := []records.Record{
		{"a": nil, "b": "x"},
		{"b": "x"},
		{"a": "", "b": "x"},
		{"a": "0", "b": "x"},
	}
	assert.Equal(t, []int{1, 2}, DeDup{Keys: []string{"a", "b"}}.Duplicates(in))
}

func TestDeDup_SeparatorPreventsCollisions(t *testing.T) {
	in := []records.Record{
		{"a": "x|y", "b": "z"},
		{"a": "x", "b": "y|z"},
	}
	assert.Empty(t, DeDup{Keys: []string{"a", "b"}}.Duplicates(in))
}

func TestDeDup_NoKeysIsNoop(t *testing.T) {
	in := []records.Record{{"a": 1}, {"a": 1}}
	assert.Nil(t, DeDup{}.Duplicates(in))
	assert.Len(t, DeDup{}.Apply(in), 2)
}
