// Package memory implements an in-process storage.Sink. It backs tests and
// dry runs ("kind": "memory") and can be told to fail inserts so the
// pipeline's failure isolation can be exercised without a database.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"tableflow/internal/records"
	"tableflow/internal/storage"
)

// ErrInjected is the error returned by inserts rejected through FailWhen.
var ErrInjected = errors.New("memory: injected insert failure")

// Sink stores documents in maps keyed by collection and document ID.
type Sink struct {
	mu    sync.Mutex
	colls map[string]map[string]records.Record

	calls atomic.Int64

	// failWhen, when set, is consulted before each insert; returning true
	// rejects the insert with ErrInjected.
	failWhen func(rec records.Record, collection string) bool
}

var (
	_ storage.KeyedSink = (*Sink)(nil)
	_ storage.Finder    = (*Sink)(nil)
)

func init() {
	storage.Register("memory", func(context.Context, storage.Config) (storage.Sink, error) {
		return New(), nil
	})
}

// New returns an empty Sink.
func New() *Sink {
	return &Sink{colls: make(map[string]map[string]records.Record)}
}

// FailWhen installs an insert failure predicate. Call it before the sink is
// shared.
func (s *Sink) FailWhen(fn func(rec records.Record, collection string) bool) *Sink {
	s.failWhen = fn
	return s
}

// Insert implements storage.Sink.
func (s *Sink) Insert(ctx context.Context, rec records.Record, collection string) error {
	return s.insert(ctx, "", rec, collection)
}

// InsertKeyed implements storage.KeyedSink.
func (s *Sink) InsertKeyed(ctx context.Context, key string, rec records.Record, collection string) error {
	return s.insert(ctx, key, rec, collection)
}

func (s *Sink) insert(ctx context.Context, key string, rec records.Record, collection string) error {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := storage.ValidateCollection(collection); err != nil {
		return err
	}
	if s.failWhen != nil && s.failWhen(rec, collection) {
		return ErrInjected
	}
	doc, err := storage.Encode(key, rec)
	if err != nil {
		return err
	}

	cp := make(records.Record, len(rec))
	for k, v := range rec {
		cp[k] = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.colls[collection]
	if !ok {
		c = make(map[string]records.Record)
		s.colls[collection] = c
	}
	if _, dup := c[doc.ID]; !dup {
		c[doc.ID] = cp
	}
	return nil
}

// Find implements storage.Finder.
func (s *Sink) Find(ctx context.Context, filter records.Record, collection string) ([]records.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.colls[collection]))
	for id := range s.colls[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []records.Record
	for _, id := range ids {
		doc := s.colls[collection][id]
		if storage.Matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

// Calls returns how many times Insert was invoked, successful or not.
func (s *Sink) Calls() int64 { return s.calls.Load() }

// Count returns the number of documents stored in collection.
func (s *Sink) Count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.colls[collection])
}

// Close implements storage.Sink.
func (s *Sink) Close() error { return nil }
