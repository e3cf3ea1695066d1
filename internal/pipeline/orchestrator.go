package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tableflow/internal/metrics"
	"tableflow/internal/records"
	"tableflow/internal/report"
)

// TableLoader produces a table from an identifier such as a file path or URL.
// Load failures should wrap ErrLoad.
type TableLoader interface {
	Load(ctx context.Context, id string) (records.Table, error)
}

// Config configures an Orchestrator.
type Config struct {
	WorkerConfig

	// MaxParallelTables caps how many tables run at once. Zero means one
	// goroutine per table with no cap.
	MaxParallelTables int
}

// Orchestrator runs one TableWorker per table concurrently and aggregates
// their reports.
type Orchestrator struct {
	worker      *TableWorker
	maxParallel int
	log         *slog.Logger
}

// New validates cfg and returns an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.MaxParallelTables < 0 {
		return nil, fmt.Errorf("pipeline: max parallel tables must be >= 0, got %d", cfg.MaxParallelTables)
	}
	w, err := NewTableWorker(cfg.WorkerConfig)
	if err != nil {
		return nil, err
	}
	return &Orchestrator{worker: w, maxParallel: cfg.MaxParallelTables, log: w.log}, nil
}

// RunAll processes every table and returns one TableReport per table ID.
// A fatal error or panic inside one table's worker is recorded in that
// table's report and does not affect the others. The returned error is
// non-nil only when no work could be started at all.
func (o *Orchestrator) RunAll(ctx context.Context, tables map[string]records.Table) (report.RunReport, error) {
	rr := report.RunReport{
		RunID:   uuid.NewString(),
		Started: time.Now(),
		Tables:  make(map[string]report.TableReport, len(tables)),
	}
	if err := ctx.Err(); err != nil {
		rr.Finished = time.Now()
		return rr, fmt.Errorf("pipeline: run not started: %w", err)
	}

	log := o.log.With("run_id", rr.RunID)
	log.Info("run started", "tables", len(tables), "row_concurrency", o.worker.Concurrency(), "max_parallel_tables", o.maxParallel)

	ids := make([]string, 0, len(tables))
	for id := range tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var mu sync.Mutex
	// The group's context is never cancelled by a table: workers return nil.
	var g errgroup.Group
	if o.maxParallel > 0 {
		g.SetLimit(o.maxParallel)
	}
	for _, id := range ids {
		table := tables[id]
		if table.ID == "" {
			table.ID = id
		}
		g.Go(func() error {
			tr := o.runTable(ctx, table)
			tr.Table = id
			recordTable(tr)
			mu.Lock()
			rr.Tables[id] = tr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	rr.Finished = time.Now()
	tot := rr.Totals()
	log.Info("run finished",
		"tables", tot.Tables, "fatal_tables", tot.FatalTables,
		"rows", tot.Rows, "stored", tot.Stored, "skipped", tot.Skipped, "failed", tot.Failed,
		"elapsed", rr.Finished.Sub(rr.Started))
	return rr, nil
}

// runTable shields the run from a panicking worker.
func (o *Orchestrator) runTable(ctx context.Context, table records.Table) (tr report.TableReport) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := &TableError{Table: table.ID, Stage: StageWorker, Err: fmt.Errorf("%v", r)}
			o.log.Error("table worker panicked", "table", table.ID, "panic", r)
			tr = report.Fatal(table.ID, err)
			tr.Duration = time.Since(start)
		}
	}()
	tr, _ = runWorker(ctx, o.worker, table)
	return tr
}

// runWorker is a test hook around TableWorker.Run.
var runWorker = func(ctx context.Context, w *TableWorker, t records.Table) (report.TableReport, error) {
	return w.Run(ctx, t)
}

// LoadAndRun loads each identifier through loader and runs the loaded tables.
// A table that fails to load gets a fatal report with a TableError wrapping
// ErrLoad; no worker runs for it. Identifiers are used as table IDs; a
// repeated identifier is loaded and run once.
func (o *Orchestrator) LoadAndRun(ctx context.Context, loader TableLoader, ids []string) (report.RunReport, error) {
	if loader == nil {
		return report.RunReport{}, errors.New("pipeline: nil loader")
	}

	tables := make(map[string]records.Table, len(ids))
	failed := make(map[string]report.TableReport)
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			o.log.Warn("duplicate table id ignored", "table", id)
			continue
		}
		seen[id] = true
		start := time.Now()
		t, err := loader.Load(ctx, id)
		if err != nil {
			terr := &TableError{Table: id, Stage: StageLoad, Err: err}
			o.log.Error("table load failed", "table", id, "err", err)
			tr := report.Fatal(id, terr)
			tr.Duration = time.Since(start)
			failed[id] = tr
			continue
		}
		t.ID = id
		tables[id] = t
	}

	rr, err := o.RunAll(ctx, tables)
	for id, tr := range failed {
		recordTable(tr)
		rr.Tables[id] = tr
	}
	return rr, err
}

// recordTable forwards a finished table's counts to the metrics backend.
func recordTable(tr report.TableReport) {
	metrics.RecordRows(tr.Table, report.Stored.String(), tr.Stored)
	metrics.RecordRows(tr.Table, report.Skipped.String(), tr.Skipped)
	metrics.RecordRows(tr.Table, report.Failed.String(), tr.Failed)

	status := "ok"
	switch {
	case tr.Err != nil:
		status = "fatal"
	case tr.Failed > 0:
		status = "partial"
	}
	metrics.RecordTable(tr.Table, status, tr.Duration)
}
