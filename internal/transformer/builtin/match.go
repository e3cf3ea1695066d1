package builtin

import (
	"fmt"
	"strings"

	"tableflow/internal/records"
)

// Match comparison operators.
const (
	OpEq       = "eq"
	OpNeq      = "neq"
	OpGt       = "gt"
	OpGte      = "gte"
	OpLt       = "lt"
	OpLte      = "lte"
	OpContains = "contains"
)

// Match keeps rows whose Field compares to Value under Op.
//
// eq and neq compare numerically when both sides are numeric (so "30" equals
// 30) and as strings otherwise. The ordering operators require both sides to
// be numeric; a non-numeric row value is an error and fails the row. A
// missing or empty field never matches, except under neq.
type Match struct {
	Field string
	Op    string
	Value any
}

// NewMatch validates op and returns a Match.
func NewMatch(field, op string, value any) (Match, error) {
	if field == "" {
		return Match{}, fmt.Errorf("match: field is required")
	}
	switch op {
	case OpEq, OpNeq, OpContains:
	case OpGt, OpGte, OpLt, OpLte:
		if _, ok := asFloat(value); !ok {
			return Match{}, fmt.Errorf("match: %s needs a numeric value, got %v", op, value)
		}
	default:
		return Match{}, fmt.Errorf("match: unknown op %q", op)
	}
	return Match{Field: field, Op: op, Value: value}, nil
}

// Keep implements transformer.Filter.
func (m Match) Keep(row records.Row) (bool, error) {
	v, ok := row.Get(m.Field)
	if !ok || isEmpty(v) {
		return m.Op == OpNeq, nil
	}

	switch m.Op {
	case OpEq:
		return equal(v, m.Value), nil
	case OpNeq:
		return !equal(v, m.Value), nil
	case OpContains:
		return strings.Contains(asString(v), asString(m.Value)), nil
	}

	got, ok := asFloat(v)
	if !ok {
		return false, fmt.Errorf("match: field %q: %q is not numeric", m.Field, asString(v))
	}
	want, _ := asFloat(m.Value)
	switch m.Op {
	case OpGt:
		return got > want, nil
	case OpGte:
		return got >= want, nil
	case OpLt:
		return got < want, nil
	case OpLte:
		return got <= want, nil
	}
	return false, fmt.Errorf("match: unknown op %q", m.Op)
}

func equal(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return fa == fb
		}
	}
	return asString(a) == asString(b)
}
