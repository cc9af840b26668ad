package csv

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"propetl/pkg/records"
)

func parse(t *testing.T, opt Options, in string) *records.Batch {
	t.Helper()
	b, err := NewParser(opt).Parse(strings.NewReader(in))
	require.NoError(t, err)
	return b
}

func TestParse_HeaderAndRows(t *testing.T) {
	b := parse(t, Options{}, "Suburb,WeeklyRent,Bedrooms\n Mt Eden ,650,3\nPonsonby,,2\n")

	assert.Equal(t, []string{"Suburb", "WeeklyRent", "Bedrooms"}, b.Columns)
	require.Len(t, b.Rows, 2)
	assert.Equal(t, records.Record{"Suburb": "Mt Eden", "WeeklyRent": "650", "Bedrooms": "3"}, b.Rows[0])
	assert.Equal(t, records.Record{"Suburb": "Ponsonby", "WeeklyRent": nil, "Bedrooms": "2"}, b.Rows[1])
	assert.Zero(t, b.Skipped)
}

func TestParse_StripsBOM(t *testing.T) {
	b := parse(t, Options{}, "\ufeffSuburb,Bedrooms\nA,1\n")
	assert.Equal(t, []string{"Suburb", "Bedrooms"}, b.Columns)
}

func TestParse_Latin1Fallback(t *testing.T) {
	// "Onehunga Café" with é encoded as the single Latin-1 byte 0xE9.
	in := "Suburb,Note\nOnehunga,Caf\xe9\n"
	b := parse(t, Options{}, in)
	require.Len(t, b.Rows, 1)
	assert.Equal(t, "Café", b.Rows[0]["Note"])
}

func TestParse_QuotedFieldsAndThousands(t *testing.T) {
	b := parse(t, Options{}, "Suburb,WeeklyRent\n\"Grey Lynn, Auckland\",\"1,200\"\n")
	assert.Equal(t, records.Record{"Suburb": "Grey Lynn, Auckland", "WeeklyRent": "1,200"}, b.Rows[0])
}

func TestParse_CustomDelimiter(t *testing.T) {
	b := parse(t, Options{Comma: ';'}, "a;b\n1;2\n")
	assert.Equal(t, records.Record{"a": "1", "b": "2"}, b.Rows[0])
}

func TestParse_RowWidth(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	b := parse(t, Options{Logger: zap.New(core), MaxLoggedSkips: 1},
		"a,b,c\n1,2\n1,2,3,4\n1,2,3,,\n5,6,7,8\n")

	require.Len(t, b.Rows, 2)
	assert.Equal(t, records.Record{"a": "1", "b": "2", "c": nil}, b.Rows[0])
	assert.Equal(t, records.Record{"a": "1", "b": "2", "c": "3"}, b.Rows[1])
	assert.Equal(t, 2, b.Skipped)
	assert.Equal(t, []int{2, 4}, b.Lines)
	assert.Equal(t, 1, logs.Len(), "skip logging is capped")
	assert.Equal(t, int64(3), logs.All()[0].ContextMap()["line"])
}

func TestParse_LinesFollowSource(t *testing.T) {
	b := parse(t, Options{}, "Suburb,Note\n\nA,\"two\nlines\"\nB,x\n")
	require.Len(t, b.Rows, 2)
	assert.Equal(t, []int{3, 5}, b.Lines)
	assert.Equal(t, 5, b.Line(1))
}

func TestParse_HeaderOnly(t *testing.T) {
	b := parse(t, Options{}, "Suburb,WeeklyRent\n")
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, []string{"Suburb", "WeeklyRent"}, b.Columns)
}

func TestParse_EmptyInput(t *testing.T) {
	_, err := NewParser(Options{}).Parse(strings.NewReader(""))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}
