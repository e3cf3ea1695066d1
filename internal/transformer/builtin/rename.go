package builtin

import (
	"fmt"
	"sort"

	"tableflow/internal/records"
)

// Rename moves values from old field names to new ones. Renames happen all
// at once, so swapping two fields works. Renaming onto a field that stays in
// the record is an error.
type Rename struct {
	Fields map[string]string // old -> new
	from   []string
}

// NewRename rejects two fields renamed to the same name.
func NewRename(fields map[string]string) (Rename, error) {
	if len(fields) == 0 {
		return Rename{}, fmt.Errorf("rename: no fields given")
	}
	r := Rename{Fields: make(map[string]string, len(fields))}
	targets := make(map[string]string, len(fields))
	for from, to := range fields {
		if to == "" {
			return Rename{}, fmt.Errorf("rename: %q: empty target name", from)
		}
		if other, dup := targets[to]; dup {
			return Rename{}, fmt.Errorf("rename: %q and %q both renamed to %q", other, from, to)
		}
		targets[to] = from
		r.Fields[from] = to
		r.from = append(r.from, from)
	}
	sort.Strings(r.from)
	return r, nil
}

// Apply implements transformer.Transformer. It mutates rec in place.
func (r Rename) Apply(rec records.Record) (records.Record, error) {
	moved := make(map[string]any, len(r.from))
	for _, from := range r.from {
		to := r.Fields[from]
		v, ok := rec[from]
		if !ok || from == to {
			continue
		}
		if _, taken := rec[to]; taken {
			if _, leaving := r.Fields[to]; !leaving {
				return nil, fmt.Errorf("rename: %q -> %q: target field already present", from, to)
			}
		}
		moved[to] = v
	}
	for _, from := range r.from {
		if _, ok := rec[from]; ok && r.Fields[from] != from {
			delete(rec, from)
		}
	}
	for to, v := range moved {
		rec[to] = v
	}
	return rec, nil
}
