package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"tableflow/internal/report"
)

// printSummary writes one line per table, the run totals, and up to
// maxFailures failed rows per table.
func printSummary(w io.Writer, rr report.RunReport, maxFailures int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tROWS\tSTORED\tSKIPPED\tFAILED\tPEAK\tELAPSED\tSTATUS")
	for _, id := range rr.TableIDs() {
		tr := rr.Tables[id]
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%s\t%s\n",
			id, tr.Total, tr.Stored, tr.Skipped, tr.Failed, tr.PeakConcurrency,
			tr.Duration.Round(time.Millisecond), status(tr))
	}
	tot := rr.Totals()
	fmt.Fprintf(tw, "TOTAL\t%d\t%d\t%d\t%d\t\t%s\t%d/%d tables fatal\n",
		tot.Rows, tot.Stored, tot.Skipped, tot.Failed,
		rr.Finished.Sub(rr.Started).Round(time.Millisecond), tot.FatalTables, tot.Tables)
	_ = tw.Flush()

	for _, id := range rr.TableIDs() {
		tr := rr.Tables[id]
		if tr.Err != nil {
			fmt.Fprintf(w, "\n%s: %v\n", id, tr.Err)
			continue
		}
		if tr.Failed == 0 || maxFailures <= 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s: %d failed rows\n", id, tr.Failed)
		for i, f := range tr.Failures {
			if i == maxFailures {
				fmt.Fprintf(w, "  ... %d more\n", len(tr.Failures)-i)
				break
			}
			fmt.Fprintf(w, "  line %d: %v\n", f.Line, f.Err)
		}
	}
	fmt.Fprintf(w, "\nrun %s\n", rr.RunID)
}

func status(tr report.TableReport) string {
	switch {
	case tr.Err != nil:
		return "fatal"
	case tr.Failed > 0:
		return "partial"
	default:
		return "ok"
	}
}
