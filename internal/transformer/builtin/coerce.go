package builtin

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"tableflow/internal/records"
)

// Coercion target types.
const (
	TypeInt    = "int"
	TypeFloat  = "float"
	TypeBool   = "bool"
	TypeDate   = "date"
	TypeString = "string"
)

// Coerce converts field values to typed values: int (int64), float
// (float64), bool, date (time.Time) or string. Missing and nil values are
// left alone.
//
// A value that does not parse is left unchanged, unless Strict is set, in
// which case Apply returns an error naming the field and the row fails.
type Coerce struct {
	Types  map[string]string
	Layout string // extra date layout tried after ISO 8601
	Strict bool

	fields []string // sorted keys of Types, for deterministic errors
}

// NewCoerce validates the type names and returns a Coerce.
func NewCoerce(types map[string]string, layout string, strict bool) (Coerce, error) {
	c := Coerce{Types: make(map[string]string, len(types)), Layout: layout, Strict: strict}
	for f, typ := range types {
		typ = normalizeKind(typ)
		switch typ {
		case TypeInt, TypeFloat, TypeBool, TypeDate, TypeString:
		default:
			return Coerce{}, fmt.Errorf("coerce: field %q: unknown type %q", f, typ)
		}
		c.Types[f] = typ
		c.fields = append(c.fields, f)
	}
	sort.Strings(c.fields)
	return c, nil
}

// Apply implements transformer.Transformer. It mutates rec in place.
func (c Coerce) Apply(rec records.Record) (records.Record, error) {
	for _, f := range c.fields {
		v, ok := rec[f]
		if !ok || v == nil {
			continue
		}
		out, err := c.convert(c.Types[f], v)
		if err != nil {
			if c.Strict {
				return nil, fmt.Errorf("coerce: field %q: %w", f, err)
			}
			continue
		}
		rec[f] = out
	}
	return rec, nil
}

func (c Coerce) convert(typ string, v any) (any, error) {
	switch typ {
	case TypeInt:
		switch t := v.(type) {
		case int64:
			return t, nil
		case int:
			return int64(t), nil
		case float64:
			if t != math.Trunc(t) {
				return nil, fmt.Errorf("%v is not an integer", t)
			}
			return int64(t), nil
		case string:
			i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not an int", t)
			}
			return i, nil
		}
	case TypeFloat:
		if f, ok := asFloat(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%q is not a number", asString(v))
	case TypeBool:
		if b, ok := v.(bool); ok {
			return b, nil
		}
		s := strings.ToLower(strings.TrimSpace(asString(v)))
		if _, ok := defaultTruthy[s]; ok {
			return true, nil
		}
		if _, ok := defaultFalsy[s]; ok {
			return false, nil
		}
		return nil, fmt.Errorf("%q is not a recognized boolean", asString(v))
	case TypeDate:
		if t, ok := v.(time.Time); ok {
			return t, nil
		}
		if s, ok := v.(string); ok {
			if t, ok := parseAnyDate(strings.TrimSpace(s), c.Layout); ok {
				return t, nil
			}
			return nil, fmt.Errorf("invalid date %q", s)
		}
	case TypeString:
		return asString(v), nil
	}
	return nil, fmt.Errorf("type %T not %s-convertible", v, typ)
}

// parseAnyDate tries ISO date, RFC 3339, then layout.
func parseAnyDate(s, layout string) (time.Time, bool) {
	for _, l := range []string{"2006-01-02", time.RFC3339, layout} {
		if l == "" {
			continue
		}
		if t, err := time.Parse(l, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeKind maps database-ish type names onto the coercion types, e.g.
// "bigint" to int and "timestamp" to date.
func normalizeKind(t string) string {
	s := strings.ToLower(strings.TrimSpace(t))
	switch s {
	case "bigint", "int8", "integer", "int4", "int2", "int":
		return TypeInt
	case "float", "double", "real", "numeric", "decimal", "float8":
		return TypeFloat
	case "boolean", "bool":
		return TypeBool
	case "date", "timestamp", "timestamptz", "datetime":
		return TypeDate
	case "text", "string", "varchar":
		return TypeString
	default:
		return s
	}
}
