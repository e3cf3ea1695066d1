// Package pool implements the bounded worker pool that enforces the per-table
// row concurrency ceiling.
//
// A Pool has a fixed number of execution slots. Submit blocks while every
// slot is busy and resumes as soon as one frees, which is the pipeline's only
// back-pressure point between the dispatcher and the row tasks. Shutdown stops
// accepting work, wakes blocked submitters, and waits for in-flight tasks to
// finish before returning.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned by Submit once Shutdown has been called.
var ErrClosed = errors.New("pool: closed")

// Pool runs submitted tasks on at most Limit goroutines at a time.
type Pool struct {
	limit int
	sem   *semaphore.Weighted

	// closing is cancelled by Shutdown to release submitters blocked in Acquire.
	closing context.Context
	cancel  context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup

	submitted atomic.Int64
	completed atomic.Int64
	active    atomic.Int64
	peak      atomic.Int64
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Limit     int
	Submitted int64
	Completed int64
	Active    int64
	Peak      int64
}

// New returns a Pool with limit slots. limit must be at least 1.
func New(limit int) (*Pool, error) {
	if limit < 1 {
		return nil, fmt.Errorf("pool: limit must be >= 1, got %d", limit)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		limit:   limit,
		sem:     semaphore.NewWeighted(int64(limit)),
		closing: ctx,
		cancel:  cancel,
	}, nil
}

// Limit returns the number of slots.
func (p *Pool) Limit() int { return p.limit }

// Submit schedules task on a free slot, blocking until one is available.
//
// It returns ErrClosed if the pool is shut down before or while waiting, and
// ctx.Err() if ctx ends while waiting. A nil return means task has been
// started and will run to completion; Shutdown waits for it.
func (p *Pool) Submit(ctx context.Context, task func()) error {
	if task == nil {
		return fmt.Errorf("pool: nil task")
	}
	if p.isClosed() {
		return ErrClosed
	}

	waitCtx, stop := context.WithCancel(ctx)
	defer stop()
	release := context.AfterFunc(p.closing, stop)
	defer release()

	if err := p.sem.Acquire(waitCtx, 1); err != nil {
		if p.isClosed() {
			return ErrClosed
		}
		return err
	}

	// wg.Add happens under mu so it can never race with Shutdown's Wait.
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.sem.Release(1)
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()

	p.submitted.Add(1)
	go p.run(task)
	return nil
}

func (p *Pool) run(task func()) {
	defer p.wg.Done()
	defer p.sem.Release(1)
	defer p.completed.Add(1)

	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}

	task()
}

// Shutdown stops accepting new tasks and blocks until every started task has
// returned. It is safe to call more than once.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
}

// Stats returns the current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Limit:     p.limit,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Active:    p.active.Load(),
		Peak:      p.peak.Load(),
	}
}

func (p *Pool) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
