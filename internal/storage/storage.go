// Package storage contains the storage-agnostic sink contract and the factory
// that maps a configured kind ("mongo", "postgres", "sqlite", ...) onto a
// concrete backend.
//
// Backends register themselves from init(); a binary that wants all of them
// blank-imports tableflow/internal/storage/all. The rest of the program only
// depends on Sink, so the pipeline never imports a database driver.
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"tableflow/internal/records"
)

// Sink persists records. Implementations must be safe for concurrent Insert
// calls from many goroutines; the pipeline shares one Sink across every row
// task of every table.
type Sink interface {
	// Insert stores rec in the named collection as a new document. Two
	// inserts of equal records store two documents.
	Insert(ctx context.Context, rec records.Record, collection string) error
	// Close releases connections held by the sink.
	Close() error
}

// KeyedSink is implemented by sinks that deduplicate retries. InsertKeyed
// stores rec under key; repeating the call with the same key and content is
// a no-op, while different keys always store separate documents. Every
// built-in backend implements it.
type KeyedSink interface {
	Sink
	InsertKeyed(ctx context.Context, key string, rec records.Record, collection string) error
}

// Finder is an optional capability of sinks that can read documents back.
// filter is matched by equality on top-level fields; an empty filter returns
// every document.
type Finder interface {
	Find(ctx context.Context, filter records.Record, collection string) ([]records.Record, error)
}

// Config selects and configures a backend.
type Config struct {
	// Kind is the registered backend name, e.g. "mongo" or "sqlite".
	Kind string
	// DSN is the backend connection string or URI.
	DSN string
	// Database names the logical database where the backend needs one in
	// addition to the DSN (mongo).
	Database string
}

// Factory constructs a Sink from Config.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

// ErrInvalidCollection is returned for collection names that are not safe to
// use as a table or collection identifier.
var ErrInvalidCollection = errors.New("storage: invalid collection name")

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind. Registering the same kind
// again replaces the previous factory.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens the backend registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unsupported kind %q (registered: %v)", cfg.Kind, ListKinds())
	}
	s, err := f(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Kind, err)
	}
	return s, nil
}

// ListKinds returns the registered backend names, sorted.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

var collectionRE = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// ValidateCollection rejects names that cannot be used verbatim as an SQL
// table name or Mongo collection.
func ValidateCollection(name string) error {
	if !collectionRE.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidCollection, name)
	}
	return nil
}
