// Package transformer defines the record transformation contract shared by
// the pipeline stages.
package transformer

import "propetl/pkg/records"

// Transformer maps a slice of records to a new slice. Implementations may
// reuse the input slice.
type Transformer interface {
	Apply([]records.Record) []records.Record
}

// Chain is an ordered list of transformers.
type Chain []Transformer

func (c Chain) Apply(in []records.Record) []records.Record {
	out := in
	for _, t := range c {
		out = t.Apply(out)
	}
	return out
}
