package builtin

import "tableflow/internal/records"

// Select projects a record. With Keep set only those fields survive (a
// missing one stays missing); Drop removes fields. Keep is applied first.
type Select struct {
	Keep []string
	Drop []string
}

// Apply implements transformer.Transformer.
func (s Select) Apply(rec records.Record) (records.Record, error) {
	if len(s.Keep) > 0 {
		out := make(records.Record, len(s.Keep))
		for _, k := range s.Keep {
			if v, ok := rec[k]; ok {
				out[k] = v
			}
		}
		rec = out
	}
	for _, k := range s.Drop {
		delete(rec, k)
	}
	return rec, nil
}
