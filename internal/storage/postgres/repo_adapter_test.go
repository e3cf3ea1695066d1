package postgres

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"tableflow/internal/storage"
)

// TestPostgresStorageRegistrationUsesNewRepositoryHook verifies that the
// "postgres" backend registered in init() uses the newRepository hook and
// that wrappedRepo delegates Close.
func TestPostgresStorageRegistrationUsesNewRepositoryHook(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	var (
		gotCfg Config
		closed bool
	)
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		gotCfg = cfg
		return &Repository{ensured: map[string]bool{}}, func() { closed = true }, nil
	}

	dsn := "postgres://u:p@localhost:5432/db?sslmode=disable"
	sink, err := storage.New(context.Background(), storage.Config{Kind: "postgres", DSN: dsn})
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if gotCfg.DSN != dsn {
		t.Errorf("hook cfg.DSN = %q; want %q", gotCfg.DSN, dsn)
	}
	if _, ok := sink.(storage.Finder); !ok {
		t.Error("postgres sink should implement storage.Finder")
	}
	_ = sink.Close()
	if !closed {
		t.Fatal("Close did not call the cleanup function")
	}
}

func TestRegistrationPropagatesHookError(t *testing.T) {
	orig := newRepository
	defer func() { newRepository = orig }()

	boom := errors.New("connection refused")
	newRepository = func(context.Context, Config) (*Repository, func(), error) { return nil, nil, boom }

	if _, err := storage.New(context.Background(), storage.Config{Kind: "postgres"}); !errors.Is(err, boom) {
		t.Fatalf("storage.New() error = %v; want %v", err, boom)
	}
}

func TestWrapPgError_IncludesSQLState(t *testing.T) {
	err := wrapPgError("insert into t", &pgconn.PgError{Code: "23505", Message: "duplicate key"})
	if !strings.Contains(err.Error(), "SQLSTATE 23505") {
		t.Fatalf("wrapPgError = %q; want SQLSTATE", err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		t.Fatal("wrapped error should unwrap to *pgconn.PgError")
	}
}
