// Package records defines the immutable tabular types that flow through the
// pipeline: a Header shared by every Row of a Table, the Row itself, and the
// Record produced by a transform and handed to storage.
//
// Rows are positional (values aligned with the header) like the pooled rows
// of a COPY loader, but they are never recycled: once a loader has built a
// Row nothing in the process mutates it, which is what lets predicates and
// transforms run on many goroutines without locking.
package records

import "fmt"

// Record is the unit handed to storage. Keys are field names.
type Record map[string]any

// Header is the ordered list of field names of a table together with a
// name → position index. A Header is read-only after NewHeader returns.
type Header struct {
	names []string
	index map[string]int
}

// NewHeader builds a Header from field names. Duplicate names are rejected
// because positional lookups would become ambiguous.
func NewHeader(names []string) (*Header, error) {
	h := &Header{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		if _, dup := h.index[n]; dup {
			return nil, fmt.Errorf("records: duplicate field %q", n)
		}
		h.names[i] = n
		h.index[n] = i
	}
	return h, nil
}

// MustHeader is NewHeader for literals in tests and fixtures.
func MustHeader(names ...string) *Header {
	h, err := NewHeader(names)
	if err != nil {
		panic(err)
	}
	return h
}

// Names returns a copy of the field names in order.
func (h *Header) Names() []string {
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len is the number of fields.
func (h *Header) Len() int { return len(h.names) }

// Index returns the position of name.
func (h *Header) Index(name string) (int, bool) {
	i, ok := h.index[name]
	return i, ok
}

// Row is one record of tabular input. Line is the 1-based data line in the
// source (0 when unknown) and is what failure reports point at.
type Row struct {
	Line   int
	header *Header
	values []any
}

// NewRow copies values into a new Row bound to h. Short value slices are
// padded with nil; long ones are an error.
func NewRow(h *Header, line int, values []any) (Row, error) {
	if h == nil {
		return Row{}, fmt.Errorf("records: nil header")
	}
	if len(values) > h.Len() {
		return Row{}, fmt.Errorf("records: line %d has %d values for %d fields", line, len(values), h.Len())
	}
	v := make([]any, h.Len())
	copy(v, values)
	return Row{Line: line, header: h, values: v}, nil
}

// Get returns the value of field name.
func (r Row) Get(name string) (any, bool) {
	if r.header == nil {
		return nil, false
	}
	i, ok := r.header.index[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// Header returns the header the row is bound to. Rows of one table share it.
func (r Row) Header() *Header { return r.header }

// Value returns the value at position i.
func (r Row) Value(i int) any { return r.values[i] }

// Len is the number of fields in the row.
func (r Row) Len() int { return len(r.values) }

// Fields returns the field names of the row in order.
func (r Row) Fields() []string {
	if r.header == nil {
		return nil
	}
	return r.header.Names()
}

// Record returns a fresh Record holding the row's fields. The caller owns the
// map; changing it does not affect the row.
func (r Row) Record() Record {
	out := make(Record, len(r.values))
	if r.header == nil {
		return out
	}
	for i, n := range r.header.names {
		out[n] = r.values[i]
	}
	return out
}

// Table is a finite, ordered sequence of rows sharing one header.
type Table struct {
	ID     string
	Header *Header
	Rows   []Row
}

// Len is the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// FromRecords builds a Table from maps, using fields as the column order.
// It is the bridge for sources (JSON) and tests that naturally produce maps.
func FromRecords(id string, fields []string, recs []Record) (Table, error) {
	h, err := NewHeader(fields)
	if err != nil {
		return Table{}, err
	}
	rows := make([]Row, 0, len(recs))
	for i, rec := range recs {
		v := make([]any, len(fields))
		for j, f := range fields {
			v[j] = rec[f]
		}
		row, err := NewRow(h, i+1, v)
		if err != nil {
			return Table{}, err
		}
		rows = append(rows, row)
	}
	return Table{ID: id, Header: h, Rows: rows}, nil
}
