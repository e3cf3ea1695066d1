// Package postgres implements a Postgres storage.Sink using pgx v5. Documents
// are stored in a JSONB column, so Find pushes equality filters down to the
// server as a containment (@>) query.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tableflow/internal/records"
	"tableflow/internal/storage"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN string // connection string for pgxpool
}

// Repository is a Postgres-backed implementation of storage.Sink.
type Repository struct {
	pool *pgxpool.Pool

	mu      sync.Mutex
	ensured map[string]bool
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	close := func() { pool.Close() }
	return &Repository{pool: pool, ensured: make(map[string]bool)}, close, nil
}

// pgIdent quotes an identifier. Collection names are validated before they
// reach here, so quoting only guards case.
func pgIdent(s string) string { return `"` + s + `"` }

func (r *Repository) ensureTable(ctx context.Context, collection string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.ensured[collection] {
		return nil
	}
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	doc JSONB NOT NULL,
	inserted_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, pgIdent(collection))
	if _, err := r.pool.Exec(ctx, ddl); err != nil {
		return wrapPgError("create table "+collection, err)
	}
	r.ensured[collection] = true
	return nil
}

// Insert implements storage.Sink.
func (r *Repository) Insert(ctx context.Context, rec records.Record, collection string) error {
	return r.insert(ctx, "", rec, collection)
}

// InsertKeyed implements storage.KeyedSink. Conflicting ids are ignored, which
// makes a retried insert of the same row a no-op.
func (r *Repository) InsertKeyed(ctx context.Context, key string, rec records.Record, collection string) error {
	return r.insert(ctx, key, rec, collection)
}

func (r *Repository) insert(ctx context.Context, key string, rec records.Record, collection string) error {
	if err := storage.ValidateCollection(collection); err != nil {
		return err
	}
	doc, err := storage.Encode(key, rec)
	if err != nil {
		return err
	}
	if err := r.ensureTable(ctx, collection); err != nil {
		return err
	}
	q := fmt.Sprintf(`INSERT INTO %s (id, doc) VALUES ($1, $2::jsonb) ON CONFLICT (id) DO NOTHING`, pgIdent(collection))
	if _, err := r.pool.Exec(ctx, q, doc.ID, string(doc.JSON)); err != nil {
		return wrapPgError("insert into "+collection, err)
	}
	return nil
}

// Find implements storage.Finder.
func (r *Repository) Find(ctx context.Context, filter records.Record, collection string) ([]records.Record, error) {
	if err := storage.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := r.ensureTable(ctx, collection); err != nil {
		return nil, err
	}
	fb := []byte("{}")
	if len(filter) > 0 {
		b, err := json.Marshal(filter)
		if err != nil {
			return nil, fmt.Errorf("postgres: encode filter: %w", err)
		}
		fb = b
	}

	q := fmt.Sprintf(`SELECT doc::text FROM %s WHERE doc @> $1::jsonb ORDER BY id`, pgIdent(collection))
	rows, err := r.pool.Query(ctx, q, string(fb))
	if err != nil {
		return nil, wrapPgError("select from "+collection, err)
	}
	defer rows.Close()

	var out []records.Record
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		var rec records.Record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("postgres: decode document: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapPgError("rows", err)
	}
	return out, nil
}

func wrapPgError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("postgres: %s: %s (SQLSTATE %s): %w", op, pgErr.Message, pgErr.Code, err)
	}
	return fmt.Errorf("postgres: %s: %w", op, err)
}
