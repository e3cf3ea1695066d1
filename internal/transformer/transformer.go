// Package transformer turns the filter and transform steps of a pipeline
// file into the row predicate and row transform a run uses.
package transformer

import (
	"fmt"

	"tableflow/internal/config"
	"tableflow/internal/pipeline"
	"tableflow/internal/records"
	"tableflow/internal/transformer/builtin"
)

// Filter decides whether a row goes on to be transformed and stored.
type Filter interface {
	Keep(records.Row) (bool, error)
}

// Transformer rewrites one record. It may mutate and return its argument.
type Transformer interface {
	Apply(records.Record) (records.Record, error)
}

// All is a list of filters ANDed in order; the first false or error wins.
type All []Filter

// Keep implements Filter.
func (a All) Keep(row records.Row) (bool, error) {
	for i, f := range a {
		ok, err := f.Keep(row)
		if err != nil {
			return false, fmt.Errorf("filter[%d]: %w", i, err)
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// Predicate adapts a to a pipeline.Predicate. An empty list accepts all rows.
func (a All) Predicate() pipeline.Predicate {
	if len(a) == 0 {
		return pipeline.AcceptAll
	}
	return a.Keep
}

// Chain is an ordered list of transformers.
type Chain []Transformer

// Apply implements Transformer.
func (c Chain) Apply(rec records.Record) (records.Record, error) {
	out := rec
	for i, t := range c {
		var err error
		if out, err = t.Apply(out); err != nil {
			return nil, fmt.Errorf("transform[%d]: %w", i, err)
		}
	}
	return out, nil
}

// Transform adapts c to a pipeline.Transform. Each row is copied into a
// fresh record first, so transformers may mutate freely.
func (c Chain) Transform() pipeline.Transform {
	if len(c) == 0 {
		return pipeline.Identity
	}
	return func(r records.Row) (records.Record, error) {
		return c.Apply(r.Record())
	}
}

// BuildFilters constructs the filters named by steps.
func BuildFilters(steps []config.Step) (All, error) {
	out := make(All, 0, len(steps))
	for i, s := range steps {
		f, err := newFilter(s)
		if err != nil {
			return nil, fmt.Errorf("filter[%d] %s: %w", i, s.Kind, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// BuildTransforms constructs the transformers named by steps.
func BuildTransforms(steps []config.Step) (Chain, error) {
	out := make(Chain, 0, len(steps))
	for i, s := range steps {
		t, err := newTransformer(s)
		if err != nil {
			return nil, fmt.Errorf("transform[%d] %s: %w", i, s.Kind, err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Build returns the predicate and transform for a pipeline.
func Build(p config.Pipeline) (pipeline.Predicate, pipeline.Transform, error) {
	filters, err := BuildFilters(p.Filter)
	if err != nil {
		return nil, nil, err
	}
	chain, err := BuildTransforms(p.Transform)
	if err != nil {
		return nil, nil, err
	}
	return filters.Predicate(), chain.Transform(), nil
}

func newFilter(s config.Step) (Filter, error) {
	switch s.Kind {
	case "require":
		fields := s.Options.StringSlice("fields")
		if len(fields) == 0 {
			return nil, fmt.Errorf("options.fields must list at least one field")
		}
		return builtin.Require{Fields: fields}, nil
	case "match":
		m, err := builtin.NewMatch(s.Options.String("field", ""), s.Options.String("op", builtin.OpEq), s.Options.Any("value"))
		if err != nil {
			return nil, err
		}
		return m, nil
	case "dedup":
		return builtin.NewDeDup(s.Options.StringSlice("keys"))
	default:
		return nil, fmt.Errorf("unknown filter kind %q", s.Kind)
	}
}

func newTransformer(s config.Step) (Transformer, error) {
	switch s.Kind {
	case "normalize":
		return builtin.Normalize{
			Fields:     s.Options.StringSlice("fields"),
			EmptyToNil: s.Options.Bool("empty_to_nil", false),
		}, nil
	case "coerce":
		types := s.Options.StringMap("types")
		if len(types) == 0 {
			return nil, fmt.Errorf("options.types must map at least one field")
		}
		return builtin.NewCoerce(types, s.Options.String("layout", ""), s.Options.Bool("strict", false))
	case "rename":
		return builtin.NewRename(s.Options.StringMap("fields"))
	case "select":
		sel := builtin.Select{Keep: s.Options.StringSlice("fields"), Drop: s.Options.StringSlice("drop")}
		if len(sel.Keep) == 0 && len(sel.Drop) == 0 {
			return nil, fmt.Errorf("options.fields or options.drop is required")
		}
		return sel, nil
	default:
		return nil, fmt.Errorf("unknown transform kind %q", s.Kind)
	}
}
