package transformer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"propetl/internal/transformer/builtin"
	"propetl/pkg/records"
)

// setField mutates each record in place.
type setField struct {
	key string
	val any
}

func (t setField) Apply(in []records.Record) []records.Record {
	for i := range in {
		in[i][t.key] = t.val
	}
	return in
}

// dropBlank keeps records with a non-null value under key, reslicing in place.
type dropBlank struct{ key string }

func (t dropBlank) Apply(in []records.Record) []records.Record {
	out := in[:0]
	for _, r := range in {
		if !records.IsNull(r[t.key]) {
			out = append(out, r)
		}
	}
	return out
}

func TestChain_AppliesInOrder(t *testing.T) {
	c := Chain{
		setField{key: "stage", val: "first"},
		setField{key: "stage", val: "second"},
		setField{key: "extra", val: 1},
	}
	out := c.Apply([]records.Record{{"id": 1}})
	assert.Equal(t, records.Record{"id": 1, "stage": "second", "extra": 1}, out[0])
}

func TestChain_FilterThenMutate(t *testing.T) {
	in := []records.Record{
		{"keep": "yes", "id": 1},
		{"keep": " ", "id": 2},
		{"keep": "yes", "id": 3},
	}
	out := Chain{dropBlank{key: "keep"}, setField{key: "tag", val: "ok"}}.Apply(in)
	require.Len(t, out, 2)
	for _, r := range out {
		assert.Equal(t, "ok", r["tag"])
	}
}

func TestChain_EmptyReturnsInput(t *testing.T) {
	in := []records.Record{{"id": 1}}
	var c Chain
	out := c.Apply(in)
	require.Len(t, out, 1)
	assert.Same(t, &in[0], &out[0])
	assert.Nil(t, Chain{}.Apply(nil))
}

func TestChain_NormalizeThenEnrich(t *testing.T) {
	c := Chain{builtin.Normalize{}, builtin.DefaultEnrich()}
	out := c.Apply([]records.Record{{
		"Suburb":     " ponsonby ",
		"WeeklyRent": 800.0,
		"FloorArea":  " 64 ",
	}})
	require.Len(t, out, 1)
	assert.Equal(t, "Ponsonby", out[0]["Suburb"])
	assert.Equal(t, 12.5, out[0][builtin.FieldPricePerArea])
}

func BenchmarkChain_Enrich(b *testing.B) {
	const n = 20000
	in := make([]records.Record, n)
	for i := range in {
		in[i] = records.Record{"Suburb": "grey lynn", "WeeklyRent": 650.0, "FloorArea": "90", "Bedrooms": 3.0}
	}
	c := Chain{builtin.DefaultEnrich()}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = c.Apply(in)
	}
}
