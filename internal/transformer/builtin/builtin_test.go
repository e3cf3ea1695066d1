package builtin

import (
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"tableflow/internal/records"
)

// row builds a single row from alternating field/value pairs.
func row(tb testing.TB, kv ...any) records.Row {
	tb.Helper()
	var names []string
	var vals []any
	for i := 0; i < len(kv); i += 2 {
		names = append(names, kv[i].(string))
		vals = append(vals, kv[i+1])
	}
	r, err := records.NewRow(records.MustHeader(names...), 1, vals)
	if err != nil {
		tb.Fatalf("NewRow: %v", err)
	}
	return r
}

func TestRequire(t *testing.T) {
	req := Require{Fields: []string{"id", "name"}}
	tests := []struct {
		name string
		row  records.Row
		want bool
	}{
		{"all present", row(t, "id", "1", "name", "a"), true},
		{"nil value", row(t, "id", "1", "name", nil), false},
		{"empty string", row(t, "id", "", "name", "a"), false},
		{"missing field", row(t, "id", "1"), false},
		{"zero is a value", row(t, "id", int64(0), "name", false), true},
	}
	for _, tc := range tests {
		got, err := req.Keep(tc.row)
		if err != nil || got != tc.want {
			t.Errorf("%s: Keep = %v, %v; want %v", tc.name, got, err, tc.want)
		}
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name    string
		op      string
		value   any
		row     records.Row
		want    bool
		wantErr bool
	}{
		{"eq string", OpEq, "Oslo", row(t, "f", "Oslo"), true, false},
		{"eq numeric string vs number", OpEq, 30, row(t, "f", "30"), true, false},
		{"eq float vs int", OpEq, 2.0, row(t, "f", int64(2)), true, false},
		{"neq", OpNeq, "x", row(t, "f", "y"), true, false},
		{"neq missing", OpNeq, "x", row(t, "g", "y"), true, false},
		{"eq missing", OpEq, "x", row(t, "g", "x"), false, false},
		{"gt", OpGt, 18, row(t, "f", "21"), true, false},
		{"gt equal", OpGt, 18, row(t, "f", int64(18)), false, false},
		{"gte equal", OpGte, 18, row(t, "f", int64(18)), true, false},
		{"lt", OpLt, 1.5, row(t, "f", 1.25), true, false},
		{"lte", OpLte, 1, row(t, "f", "2"), false, false},
		{"contains", OpContains, "ana", row(t, "f", "banana"), true, false},
		{"contains number", OpContains, "23", row(t, "f", int64(1234)), true, false},
		{"gt non numeric", OpGt, 1, row(t, "f", "abc"), false, true},
		{"gt empty", OpGt, 1, row(t, "f", ""), false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewMatch("f", tc.op, tc.value)
			if err != nil {
				t.Fatalf("NewMatch: %v", err)
			}
			got, err := m.Keep(tc.row)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Keep err = %v; wantErr %v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("Keep = %v; want %v", got, tc.want)
			}
		})
	}
}

func TestNewMatch_Invalid(t *testing.T) {
	if _, err := NewMatch("", OpEq, 1); err == nil {
		t.Error("empty field: want error")
	}
	if _, err := NewMatch("f", "like", 1); err == nil {
		t.Error("unknown op: want error")
	}
	if _, err := NewMatch("f", OpGt, "abc"); err == nil {
		t.Error("gt with non-numeric value: want error")
	}
}

// tableRow builds a row bound to h, the way a loader binds every row of one
// table to a shared header.
func tableRow(tb testing.TB, h *records.Header, line int, vals ...any) records.Row {
	tb.Helper()
	r, err := records.NewRow(h, line, vals)
	if err != nil {
		tb.Fatalf("NewRow: %v", err)
	}
	return r
}

/*
TestDeDup_KeepFirstAndConcurrent verifies first-wins semantics and that a
shared DeDup admits each key exactly once under concurrent use.
*/
func TestDeDup_KeepFirstAndConcurrent(t *testing.T) {
	d, err := NewDeDup([]string{"pcv", "date"})
	if err != nil {
		t.Fatalf("NewDeDup: %v", err)
	}
	h := records.MustHeader("pcv", "date")
	seq := []struct {
		r    records.Row
		want bool
	}{
		{tableRow(t, h, 1, "1", "2024-01-01"), true},
		{tableRow(t, h, 2, "1", "2024-01-02"), true},
		{tableRow(t, h, 3, "1", "2024-01-01"), false},
		{tableRow(t, h, 4, nil, "2024-01-01"), true},
		{tableRow(t, h, 5, nil, "2024-01-01"), false},
		{row(t, "pcv", "1"), true}, // missing key field: untracked
	}
	for i, s := range seq {
		if got, _ := d.Keep(s.r); got != s.want {
			t.Fatalf("step %d: Keep = %v; want %v", i, got, s.want)
		}
	}
	if d.Seen() != 3 {
		t.Fatalf("Seen = %d; want 3", d.Seen())
	}

	d2, _ := NewDeDup([]string{"k"})
	h2 := records.MustHeader("k")
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		kept int
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				if ok, _ := d2.Keep(tableRow(t, h2, i+1, int64(i))); ok {
					mu.Lock()
					kept++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if kept != 50 {
		t.Fatalf("kept = %d; want 50 distinct keys", kept)
	}

	if _, err := NewDeDup(nil); err == nil {
		t.Fatal("NewDeDup(nil): want error")
	}
}

// TestDeDup_ScopedPerTable verifies that equal keys in two tables are both
// kept, whichever table is filtered first.
func TestDeDup_ScopedPerTable(t *testing.T) {
	for _, order := range [][]string{{"a", "b"}, {"b", "a"}} {
		d, _ := NewDeDup([]string{"id"})
		headers := map[string]*records.Header{
			"a": records.MustHeader("id", "src"),
			"b": records.MustHeader("id", "src"),
		}
		kept := map[string]int{}
		for _, tbl := range order {
			for line := 1; line <= 3; line++ {
				if ok, _ := d.Keep(tableRow(t, headers[tbl], line, "42", tbl)); ok {
					kept[tbl]++
				}
			}
		}
		if kept["a"] != 1 || kept["b"] != 1 {
			t.Fatalf("order %v: kept = %v; want one row per table", order, kept)
		}
		if d.Seen() != 2 {
			t.Fatalf("order %v: Seen = %d; want 2", order, d.Seen())
		}
	}
}

func TestNormalize(t *testing.T) {
	rec := records.Record{
		"a": "  cafe\u0301 ",
		"b": "x\u00a0y",
		"c": "Praha\u00c2\u00a0",
		"d": "   ",
		"n": int64(5),
	}
	out, err := Normalize{EmptyToNil: true}.Apply(rec)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := records.Record{"a": "caf\u00e9", "b": "x y", "c": "Praha", "d": nil, "n": int64(5)}
	if !reflect.DeepEqual(out, want) {
		t.Fatalf("Normalize = %#v; want %#v", out, want)
	}

	only, _ := Normalize{Fields: []string{"a"}}.Apply(records.Record{"a": " x ", "b": " y "})
	if only["a"] != "x" || only["b"] != " y " {
		t.Fatalf("Fields-limited Normalize = %#v", only)
	}
}

func TestCoerce(t *testing.T) {
	c, err := NewCoerce(map[string]string{
		"i": "int", "big": "bigint", "f": "float", "b": "bool", "d": "date", "dl": "date", "s": "string",
	}, "02.01.2006", false)
	if err != nil {
		t.Fatalf("NewCoerce: %v", err)
	}
	out, err := c.Apply(records.Record{
		"i": " 42 ", "big": 7.0, "f": "2.5", "b": "Ano", "d": "2025-11-09", "dl": "13.08.2018", "s": int64(3), "x": "untouched",
	})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if out["i"] != int64(42) || out["big"] != int64(7) || out["f"] != 2.5 || out["b"] != true || out["s"] != "3" {
		t.Fatalf("coerced = %#v", out)
	}
	if d, ok := out["d"].(time.Time); !ok || d.Format("2006-01-02") != "2025-11-09" {
		t.Fatalf("d = %#v", out["d"])
	}
	if d, ok := out["dl"].(time.Time); !ok || d.Format("2006-01-02") != "2018-08-13" {
		t.Fatalf("dl = %#v", out["dl"])
	}
	if out["x"] != "untouched" {
		t.Fatalf("x = %#v", out["x"])
	}
}

func TestCoerce_LenientAndStrict(t *testing.T) {
	types := map[string]string{"i": "int", "b": "bool", "d": "date"}
	bad := func() records.Record {
		return records.Record{"i": "not-an-int", "b": "nope", "d": "11/09/2025", "nil": nil}
	}

	lenient, _ := NewCoerce(types, "", false)
	out, err := lenient.Apply(bad())
	if err != nil {
		t.Fatalf("lenient Apply: %v", err)
	}
	if !reflect.DeepEqual(out, bad()) {
		t.Fatalf("lenient should leave invalid values: %#v", out)
	}

	strict, _ := NewCoerce(types, "", true)
	if _, err := strict.Apply(bad()); err == nil || !strings.Contains(err.Error(), `field "b"`) {
		t.Fatalf("strict err = %v; want first failing field in sorted order (b)", err)
	}
	if _, err := strict.Apply(records.Record{"i": 1.5}); err == nil {
		t.Fatal("strict int from 1.5: want error")
	}
	if _, err := strict.Apply(records.Record{"i": nil}); err != nil {
		t.Fatalf("strict nil value: %v", err)
	}

	if _, err := NewCoerce(map[string]string{"x": "uuid"}, "", false); err == nil {
		t.Fatal("unknown type: want error")
	}
}

func TestRename(t *testing.T) {
	r, err := NewRename(map[string]string{"a": "b", "b": "a", "c": "z"})
	if err != nil {
		t.Fatalf("NewRename: %v", err)
	}
	out, err := r.Apply(records.Record{"a": 1, "b": 2, "c": 3})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if want := (records.Record{"a": 2, "b": 1, "z": 3}); !reflect.DeepEqual(out, want) {
		t.Fatalf("swap = %#v; want %#v", out, want)
	}

	r2, _ := NewRename(map[string]string{"old": "new"})
	if _, err := r2.Apply(records.Record{"old": 1, "new": 2}); err == nil {
		t.Fatal("rename onto existing field: want error")
	}
	if out, _ := r2.Apply(records.Record{"other": 1}); !reflect.DeepEqual(out, records.Record{"other": 1}) {
		t.Fatalf("missing source changed record: %#v", out)
	}

	if _, err := NewRename(map[string]string{"a": "x", "b": "x"}); err == nil {
		t.Fatal("two fields onto one target: want error")
	}
	if _, err := NewRename(nil); err == nil {
		t.Fatal("empty rename: want error")
	}
}

func TestSelect(t *testing.T) {
	in := func() records.Record { return records.Record{"a": 1, "b": 2, "c": 3} }
	tests := []struct {
		name string
		sel  Select
		want records.Record
	}{
		{"keep", Select{Keep: []string{"a", "missing"}}, records.Record{"a": 1}},
		{"drop", Select{Drop: []string{"b"}}, records.Record{"a": 1, "c": 3}},
		{"keep then drop", Select{Keep: []string{"a", "b"}, Drop: []string{"a"}}, records.Record{"b": 2}},
	}
	for _, tc := range tests {
		got, _ := tc.sel.Apply(in())
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("%s: got %#v; want %#v", tc.name, got, tc.want)
		}
	}
}
