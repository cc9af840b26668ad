package builtin

import (
	"strings"

	"propetl/pkg/records"
)

// "\u00c2\u00a0" is a UTF-8 no-break space that was decoded as Latin-1.
var nbspReplacer = strings.NewReplacer("\u00c2\u00a0", " ", "\u00a0", " ")

// Normalize trims string values, replaces no-break spaces (including their
// mis-decoded form) with plain spaces, and turns blank strings into nil.
type Normalize struct{}

func (Normalize) Apply(in []records.Record) []records.Record {
	for _, r := range in {
		for k, v := range r {
			s, ok := v.(string)
			if !ok {
				continue
			}
			s = strings.TrimSpace(nbspReplacer.Replace(s))
			if s == "" {
				r[k] = nil
				continue
			}
			r[k] = s
		}
	}
	return in
}
