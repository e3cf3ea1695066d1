// Package sqldoc stores records as JSON documents in a database/sql table per
// collection. Each table has three columns: id (document ID, primary key),
// doc (the JSON text) and inserted_at. Dialects supply the DDL and the
// duplicate-ignoring INSERT; everything else is shared by the sqlite, mysql
// and mssql backends.
package sqldoc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"tableflow/internal/records"
	"tableflow/internal/storage"
)

// Dialect renders the statements that differ between SQL engines. table is
// always a name accepted by storage.ValidateCollection.
type Dialect interface {
	// Name is used as the error prefix, e.g. "sqlite".
	Name() string
	// CreateTable returns an idempotent CREATE TABLE statement.
	CreateTable(table string) string
	// InsertIgnore returns an INSERT taking (id, doc) that is a no-op when
	// id already exists.
	InsertIgnore(table string) string
	// SelectDocs returns a SELECT of the doc column ordered by id.
	SelectDocs(table string) string
}

// Store is a storage.Sink and storage.Finder over *sql.DB.
type Store struct {
	db      *sql.DB
	dialect Dialect

	mu      sync.Mutex
	ensured map[string]bool
}

var (
	_ storage.KeyedSink = (*Store)(nil)
	_ storage.Finder    = (*Store)(nil)
)

// New wraps an open database. The Store owns db and closes it on Close.
func New(db *sql.DB, d Dialect) *Store {
	return &Store{db: db, dialect: d, ensured: make(map[string]bool)}
}

// DB exposes the underlying handle for tests and diagnostics.
func (s *Store) DB() *sql.DB { return s.db }

// ensureTable creates the collection table once per Store. The mutex is held
// across the DDL so concurrent first inserts do not race on CREATE.
func (s *Store) ensureTable(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.CreateTable(collection)); err != nil {
		return fmt.Errorf("%s: create table %s: %w", s.dialect.Name(), collection, err)
	}
	s.ensured[collection] = true
	return nil
}

// Insert implements storage.Sink.
func (s *Store) Insert(ctx context.Context, rec records.Record, collection string) error {
	return s.insert(ctx, "", rec, collection)
}

// InsertKeyed implements storage.KeyedSink.
func (s *Store) InsertKeyed(ctx context.Context, key string, rec records.Record, collection string) error {
	return s.insert(ctx, key, rec, collection)
}

func (s *Store) insert(ctx context.Context, key string, rec records.Record, collection string) error {
	if err := storage.ValidateCollection(collection); err != nil {
		return err
	}
	doc, err := storage.Encode(key, rec)
	if err != nil {
		return err
	}
	if err := s.ensureTable(ctx, collection); err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.InsertIgnore(collection), doc.ID, string(doc.JSON)); err != nil {
		return fmt.Errorf("%s: insert into %s: %w", s.dialect.Name(), collection, err)
	}
	return nil
}

// Find implements storage.Finder. Filtering happens client-side because the
// JSON operators differ too much between engines to share one query.
func (s *Store) Find(ctx context.Context, filter records.Record, collection string) ([]records.Record, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := s.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.SelectDocs(collection))
	if err != nil {
		return nil, fmt.Errorf("%s: select from %s: %w", s.dialect.Name(), collection, err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", s.dialect.Name(), err)
		}
		var rec records.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s: decode document: %w", s.dialect.Name(), err)
		}
		if storage.Matches(rec, filter) {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", s.dialect.Name(), err)
	}
	return out, nil
}

// Close implements storage.Sink.
func (s *Store) Close() error { return s.db.Close() }
