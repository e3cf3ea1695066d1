// Package pipeline is the concurrent core of tableflow: a TableWorker filters
// one table's rows and pushes the survivors through a bounded pool of
// transform+store tasks, and an Orchestrator runs one TableWorker per table
// and folds their reports into a RunReport.
//
// Every input row yields exactly one outcome. Row-level errors never escape a
// TableWorker and table-level errors never escape the Orchestrator; both end
// up in the returned reports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"tableflow/internal/pool"
	"tableflow/internal/records"
	"tableflow/internal/report"
	"tableflow/internal/storage"
)

// Predicate decides whether a row is eligible for processing. It must be
// safe for concurrent use; a returned error fails the row.
type Predicate func(records.Row) (bool, error)

// Transform maps an eligible row to the record to store. It must be safe for
// concurrent use; a returned error fails the row.
type Transform func(records.Row) (records.Record, error)

// AcceptAll is the default predicate.
func AcceptAll(records.Row) (bool, error) { return true, nil }

// Identity is the default transform: the row's fields as a record.
func Identity(r records.Row) (records.Record, error) { return r.Record(), nil }

// rowPool is the subset of *pool.Pool a TableWorker drives.
type rowPool interface {
	Submit(ctx context.Context, task func()) error
	Shutdown()
	Stats() pool.Stats
}

// newPool is a test hook for pool construction failures.
var newPool = func(limit int) (rowPool, error) {
	return pool.New(limit)
}

// WorkerConfig configures a TableWorker.
type WorkerConfig struct {
	Predicate  Predicate
	Transform  Transform
	Sink       storage.Sink
	Collection string

	// Concurrency bounds the row tasks in flight. Zero means runtime.NumCPU().
	Concurrency int

	Logger *slog.Logger
}

// TableWorker processes one table at a time. It holds no per-run state, so
// one value may run many tables concurrently.
type TableWorker struct {
	pred       Predicate
	xform      Transform
	sink       storage.Sink
	collection string
	limit      int
	log        *slog.Logger
}

// NewTableWorker validates cfg and fills defaults.
func NewTableWorker(cfg WorkerConfig) (*TableWorker, error) {
	if cfg.Sink == nil {
		return nil, errors.New("pipeline: nil sink")
	}
	if err := storage.ValidateCollection(cfg.Collection); err != nil {
		return nil, fmt.Errorf("pipeline: %w", err)
	}
	if cfg.Concurrency < 0 {
		return nil, fmt.Errorf("pipeline: concurrency must be >= 0, got %d", cfg.Concurrency)
	}
	w := &TableWorker{
		pred:       cfg.Predicate,
		xform:      cfg.Transform,
		sink:       cfg.Sink,
		collection: cfg.Collection,
		limit:      cfg.Concurrency,
		log:        cfg.Logger,
	}
	if w.pred == nil {
		w.pred = AcceptAll
	}
	if w.xform == nil {
		w.xform = Identity
	}
	if w.limit == 0 {
		w.limit = runtime.NumCPU()
	}
	if w.log == nil {
		w.log = slog.New(slog.DiscardHandler)
	}
	return w, nil
}

// Concurrency returns the effective row concurrency limit.
func (w *TableWorker) Concurrency() int { return w.limit }

// Run processes table and returns its report. The error is non-nil only for
// table-fatal conditions (pool construction); the same error is also stored
// in the report. Row failures are reported, never returned.
func (w *TableWorker) Run(ctx context.Context, table records.Table) (report.TableReport, error) {
	start := time.Now()
	log := w.log.With("table", table.ID)

	outcomes := make([]report.Outcome, len(table.Rows))
	eligible := make([]int, 0, len(table.Rows))

	for i, row := range table.Rows {
		ok, err := w.filter(row)
		switch {
		case err != nil:
			outcomes[i] = report.FailedAt(row.Line, rowErr(StagePredicate, table.ID, row.Line, err))
		case !ok:
			outcomes[i] = report.SkippedAt(row.Line)
		default:
			eligible = append(eligible, i)
		}
	}

	p, err := newPool(w.limit)
	if err != nil {
		terr := &TableError{Table: table.ID, Stage: StagePool, Err: err}
		log.Error("pool construction failed", "err", err)
		tr := report.Fatal(table.ID, terr)
		tr.Duration = time.Since(start)
		return tr, terr
	}

	log.Debug("dispatching rows", "eligible", len(eligible), "skipped_or_failed", len(table.Rows)-len(eligible), "limit", w.limit)

	submitted := 0
	for _, i := range eligible {
		row := table.Rows[i]
		slot := &outcomes[i]
		if err := p.Submit(ctx, func() { *slot = w.process(ctx, table.ID, row) }); err != nil {
			log.Warn("row dispatch stopped", "line", row.Line, "err", err)
			break
		}
		submitted++
	}
	p.Shutdown()

	// Rows that never reached a slot are failed with the reason dispatch
	// stopped, so the per-row accounting still adds up.
	if submitted < len(eligible) {
		cause := ctx.Err()
		if cause == nil {
			cause = pool.ErrClosed
		}
		for _, i := range eligible[submitted:] {
			line := table.Rows[i].Line
			outcomes[i] = report.FailedAt(line, rowErr(StageSubmit, table.ID, line, cause))
		}
	}

	tr := report.Fold(table.ID, outcomes)
	tr.Duration = time.Since(start)
	tr.PeakConcurrency = int(p.Stats().Peak)

	log.Info("table done",
		"total", tr.Total, "stored", tr.Stored, "skipped", tr.Skipped, "failed", tr.Failed,
		"peak", tr.PeakConcurrency, "elapsed", tr.Duration)
	return tr, nil
}

// filter applies the predicate, turning a panic into an error.
func (w *TableWorker) filter(row records.Row) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok, err = false, fmt.Errorf("panic: %v", r)
		}
	}()
	return w.pred(row)
}

// process runs transform and store for one row. It always returns a terminal
// outcome; a panicking transform or sink fails only this row.
func (w *TableWorker) process(ctx context.Context, table string, row records.Row) (out report.Outcome) {
	stage := StageTransform
	defer func() {
		if r := recover(); r != nil {
			out = report.FailedAt(row.Line, rowErr(stage, table, row.Line, fmt.Errorf("panic: %v", r)))
		}
	}()

	rec, err := w.xform(row)
	if err != nil {
		return report.FailedAt(row.Line, rowErr(StageTransform, table, row.Line, err))
	}
	stage = StageStore
	if err := storage.InsertRow(ctx, w.sink, storage.RowKey(table, row.Line), rec, w.collection); err != nil {
		return report.FailedAt(row.Line, rowErr(StageStore, table, row.Line, err))
	}
	return report.StoredAt(row.Line)
}
