package xlsx

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"propetl/pkg/records"
)

// workbook builds an in-memory workbook with rows written from A1 (or the
// given start row) of each named sheet.
func workbook(t *testing.T, sheets map[string][][]any, startRow int) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	first := true
	for _, name := range []string{"Listings", "Other"} {
		rows, ok := sheets[name]
		if !ok {
			continue
		}
		if first {
			require.NoError(t, f.SetSheetName("Sheet1", name))
			first = false
		} else {
			_, err := f.NewSheet(name)
			require.NoError(t, err)
		}
		for i, r := range rows {
			cell, err := excelize.CoordinatesToCellName(1, startRow+i)
			require.NoError(t, err)
			row := r
			require.NoError(t, f.SetSheetRow(name, cell, &row))
		}
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestParse_FirstSheet(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Listings": {
			{"Suburb", "WeeklyRent", "Bedrooms"},
			{" Mt Eden ", 650, 4.5},
			{"", "", ""},
			{"Ponsonby", "1,200", ""},
		},
		"Other": {{"x"}, {"y"}},
	}, 3)

	b, err := Parse(bytes.NewReader(data), Options{})
	require.NoError(t, err)

	assert.Equal(t, []string{"Suburb", "WeeklyRent", "Bedrooms"}, b.Columns)
	require.Len(t, b.Rows, 2)
	assert.Equal(t, records.Record{"Suburb": "Mt Eden", "WeeklyRent": "650", "Bedrooms": "4.5"}, b.Rows[0])
	assert.Equal(t, records.Record{"Suburb": "Ponsonby", "WeeklyRent": "1,200", "Bedrooms": nil}, b.Rows[1])
	assert.Equal(t, []int{4, 6}, b.Lines, "sheet rows, header on row 3")
}

func TestParse_NamedSheet(t *testing.T) {
	data := workbook(t, map[string][][]any{
		"Listings": {{"a"}, {1}},
		"Other":    {{"x"}, {"y"}},
	}, 1)

	b, err := Parse(bytes.NewReader(data), Options{Sheet: "Other"})
	require.NoError(t, err)
	assert.Equal(t, []records.Record{{"x": "y"}}, b.Rows)
}

func TestParse_EmptySheet(t *testing.T) {
	data := workbook(t, map[string][][]any{"Listings": {}}, 1)
	_, err := Parse(bytes.NewReader(data), Options{})
	assert.Error(t, err)
}

func TestParse_NotAWorkbook(t *testing.T) {
	_, err := Parse(bytes.NewReader([]byte("Suburb,WeeklyRent\n")), Options{})
	assert.Error(t, err)
}
