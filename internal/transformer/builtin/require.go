package builtin

import "tableflow/internal/records"

// Require keeps rows that have a non-empty value for every listed field.
// A missing field, nil or "" drops the row.
type Require struct {
	Fields []string
}

// Keep implements transformer.Filter.
func (r Require) Keep(row records.Row) (bool, error) {
	for _, f := range r.Fields {
		v, ok := row.Get(f)
		if !ok || isEmpty(v) {
			return false, nil
		}
	}
	return true, nil
}
