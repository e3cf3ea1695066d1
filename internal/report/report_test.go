package report

import (
	"errors"
	"reflect"
	"testing"
)

func TestFold_CountsAndOrdersFailures(t *testing.T) {
	boom := errors.New("boom")
	r := Fold("t", []Outcome{
		StoredAt(1),
		FailedAt(9, boom),
		SkippedAt(3),
		FailedAt(4, boom),
		StoredAt(5),
	})

	if r.Total != 5 || r.Stored != 2 || r.Skipped != 1 || r.Failed != 2 {
		t.Fatalf("counts = %+v", r)
	}
	if r.Stored+r.Skipped+r.Failed != r.Total {
		t.Fatal("counts do not add up to Total")
	}
	if got, want := r.FailedLines(), []int{4, 9}; !reflect.DeepEqual(got, want) {
		t.Fatalf("FailedLines = %v; want %v", got, want)
	}
	if !errors.Is(r.Failures[0].Err, boom) {
		t.Fatalf("failure lost original error: %v", r.Failures[0].Err)
	}
	if r.OK() {
		t.Fatal("OK() with failures")
	}
}

func TestRunReport_Totals(t *testing.T) {
	rr := RunReport{Tables: map[string]TableReport{
		"b": Fold("b", []Outcome{StoredAt(1), StoredAt(2)}),
		"a": Fold("a", []Outcome{SkippedAt(1)}),
		"c": Fatal("c", errors.New("load")),
	}}

	tot := rr.Totals()
	want := Totals{Tables: 3, FatalTables: 1, Rows: 3, Stored: 2, Skipped: 1}
	if tot != want {
		t.Fatalf("Totals = %+v; want %+v", tot, want)
	}
	if !rr.HasFailures() {
		t.Fatal("HasFailures = false with a fatal table")
	}
	if got := rr.TableIDs(); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("TableIDs = %v", got)
	}
	if rr.FailedLines("nope") != nil {
		t.Fatal("FailedLines for unknown table should be nil")
	}
}

func TestKindString(t *testing.T) {
	cases := map[Kind]string{Stored: "stored", Skipped: "skipped", Failed: "failed", Pending: "pending"}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("%d.String() = %q; want %q", k, got, want)
		}
	}
}
