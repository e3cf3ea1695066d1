// Package report holds the per-row outcomes and the per-table and per-run
// aggregates returned by the pipeline.
//
// Invariants for a table that did not fail fatally:
//
//	Stored + Skipped + Failed == Total == number of input rows
//	len(Failures) == Failed
package report

import (
	"sort"
	"time"
)

// Kind is the terminal status of one row.
type Kind int

const (
	// Pending marks an outcome slot that was never filled. It never appears in
	// a finished report.
	Pending Kind = iota
	Stored
	Skipped
	Failed
)

func (k Kind) String() string {
	switch k {
	case Stored:
		return "stored"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "pending"
	}
}

// Outcome is the result of processing one row. Err is set only for Failed.
type Outcome struct {
	Line int
	Kind Kind
	Err  error
}

// StoredAt, SkippedAt and FailedAt build outcomes for a row line.
func StoredAt(line int) Outcome            { return Outcome{Line: line, Kind: Stored} }
func SkippedAt(line int) Outcome           { return Outcome{Line: line, Kind: Skipped} }
func FailedAt(line int, err error) Outcome { return Outcome{Line: line, Kind: Failed, Err: err} }

// TableReport aggregates the outcomes of one table.
type TableReport struct {
	Table   string
	Total   int
	Stored  int
	Skipped int
	Failed  int

	// Failures lists every Failed outcome with its original error.
	Failures []Outcome

	// Err is the table-scoped fatal error (load failure, pool construction,
	// worker panic). When set, the counts describe whatever was recorded
	// before the failure, usually nothing.
	Err error

	Duration time.Duration

	// PeakConcurrency is the highest number of row tasks observed running
	// at once for this table.
	PeakConcurrency int
}

// Fold builds a TableReport from outcomes.
func Fold(table string, outcomes []Outcome) TableReport {
	r := TableReport{Table: table, Total: len(outcomes)}
	for _, o := range outcomes {
		switch o.Kind {
		case Stored:
			r.Stored++
		case Skipped:
			r.Skipped++
		default:
			r.Failed++
			r.Failures = append(r.Failures, o)
		}
	}
	sort.Slice(r.Failures, func(i, j int) bool { return r.Failures[i].Line < r.Failures[j].Line })
	return r
}

// Fatal builds the report of a table that could not be processed at all.
func Fatal(table string, err error) TableReport {
	return TableReport{Table: table, Err: err}
}

// OK reports whether the table finished without fatal error and without
// row failures.
func (r TableReport) OK() bool { return r.Err == nil && r.Failed == 0 }

// FailedLines returns the source lines of failed rows in ascending order.
func (r TableReport) FailedLines() []int {
	out := make([]int, len(r.Failures))
	for i, f := range r.Failures {
		out[i] = f.Line
	}
	return out
}

// RunReport is the orchestrator's output: one TableReport per input table.
type RunReport struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Tables   map[string]TableReport
}

// Totals sums the counts of every table.
type Totals struct {
	Tables      int
	FatalTables int
	Rows        int
	Stored      int
	Skipped     int
	Failed      int
}

// Totals aggregates counts across tables.
func (r RunReport) Totals() Totals {
	var t Totals
	for _, tr := range r.Tables {
		t.Tables++
		if tr.Err != nil {
			t.FatalTables++
		}
		t.Rows += tr.Total
		t.Stored += tr.Stored
		t.Skipped += tr.Skipped
		t.Failed += tr.Failed
	}
	return t
}

// HasFailures reports whether any table failed fatally or has failed rows.
func (r RunReport) HasFailures() bool {
	for _, tr := range r.Tables {
		if !tr.OK() {
			return true
		}
	}
	return false
}

// TableIDs returns the table identifiers sorted for stable output.
func (r RunReport) TableIDs() []string {
	ids := make([]string, 0, len(r.Tables))
	for id := range r.Tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FailedLines returns the failed row lines of one table, for retrying just
// those rows.
func (r RunReport) FailedLines(table string) []int {
	tr, ok := r.Tables[table]
	if !ok {
		return nil
	}
	return tr.FailedLines()
}
