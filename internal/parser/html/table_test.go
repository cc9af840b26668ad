package html

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propetl/pkg/records"
)

const listingsPage = `<html><body>
<table id="nav"><tr><td>Home</td><td>About</td></tr></table>
<table>
  <thead><tr><th>Suburb</th><th>Weekly&nbsp;Rent</th><th></th></tr></thead>
  <tbody>
    <tr><td> Mt   Eden </td><td>650</td><td><b>3</b></td></tr>
    <tr><td>Ponsonby<br>West</td><td></td><td>2<script>x()</script></td></tr>
    <tr><td colspan="2">merged</td></tr>
  </tbody>
</table>
</body></html>`

func TestParseTables_PicksLargest(t *testing.T) {
	b, err := ParseTables(strings.NewReader(listingsPage))
	require.NoError(t, err)

	assert.Equal(t, []string{"Suburb", "Weekly Rent", "Unnamed: 2"}, b.Columns)
	require.Len(t, b.Rows, 3)
	assert.Equal(t, records.Record{"Suburb": "Mt Eden", "Weekly Rent": "650", "Unnamed: 2": "3"}, b.Rows[0])
	assert.Equal(t, records.Record{"Suburb": "Ponsonby West", "Weekly Rent": nil, "Unnamed: 2": "2"}, b.Rows[1])
	assert.Equal(t, records.Record{"Suburb": "merged", "Weekly Rent": "merged", "Unnamed: 2": nil}, b.Rows[2])
	assert.Equal(t, []int{2, 3, 4}, b.Lines)
}

func TestParseTables_NestedTablesReadSeparately(t *testing.T) {
	doc := `<table>
<tr><th>outer</th></tr>
<tr><td><table><tr><th>a</th><th>b</th></tr><tr><td>1</td><td>2</td></tr><tr><td>3</td><td>4</td></tr></table></td></tr>
</table>`
	b, err := ParseTables(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, b.Columns)
	assert.Len(t, b.Rows, 2)
}

func TestParseTables_TieKeepsFirst(t *testing.T) {
	doc := `<table><tr><th>first</th></tr><tr><td>1</td></tr></table>
<table><tr><th>second</th></tr><tr><td>2</td></tr></table>`
	b, err := ParseTables(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"first"}, b.Columns)
}

func TestParseTables_NoTable(t *testing.T) {
	for _, doc := range []string{
		`<p>nothing here</p>`,
		`<table><tr><th>only header</th></tr></table>`,
		`<table></table>`,
	} {
		_, err := ParseTables(strings.NewReader(doc))
		assert.ErrorIs(t, err, ErrNoTable, doc)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", CollapseWhitespace("  a\n\t b  c "))
	assert.Equal(t, "", CollapseWhitespace(""))
	assert.Equal(t, "", CollapseWhitespace(" \n "))
}
