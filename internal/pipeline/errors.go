package pipeline

import (
	"errors"
	"fmt"
)

// Stage sentinels. errors.Is(err, ErrTransform) tells a caller where a row or
// table failed; errors.Unwrap on the typed wrappers yields the original cause.
var (
	ErrPredicate        = errors.New("predicate failed")
	ErrTransform        = errors.New("transform failed")
	ErrStore            = errors.New("store failed")
	ErrPoolConstruction = errors.New("worker pool construction failed")
	ErrLoad             = errors.New("table load failed")
	ErrPanic            = errors.New("table worker panicked")
)

// Stage names the step of row processing that produced an error.
type Stage string

const (
	StagePredicate Stage = "predicate"
	StageTransform Stage = "transform"
	StageStore     Stage = "store"
	StageSubmit    Stage = "submit"
	StagePool      Stage = "pool"
	StageLoad      Stage = "load"
	StageWorker    Stage = "worker"
)

func (s Stage) sentinel() error {
	switch s {
	case StagePredicate:
		return ErrPredicate
	case StageTransform:
		return ErrTransform
	case StageStore:
		return ErrStore
	case StagePool:
		return ErrPoolConstruction
	case StageLoad:
		return ErrLoad
	case StageWorker:
		return ErrPanic
	default:
		return nil
	}
}

// RowError is the error carried by a Failed outcome.
type RowError struct {
	Stage Stage
	Table string
	Line  int
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("table %s line %d: %s: %v", e.Table, e.Line, e.Stage, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Is matches the sentinel of the failing stage.
func (e *RowError) Is(target error) bool {
	s := e.Stage.sentinel()
	return s != nil && target == s
}

// TableError is a table-scoped fatal error, recorded in TableReport.Err.
type TableError struct {
	Table string
	Stage Stage
	Err   error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s: %s: %v", e.Table, e.Stage, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }

func (e *TableError) Is(target error) bool {
	s := e.Stage.sentinel()
	return s != nil && target == s
}

func rowErr(stage Stage, table string, line int, err error) *RowError {
	return &RowError{Stage: stage, Table: table, Line: line, Err: err}
}
