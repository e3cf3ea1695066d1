// Package sqlite implements a SQLite-backed storage.Sink on top of sqldoc.
// It is the default backend for local runs: a DSN such as
// "file:tableflow.db?cache=shared" needs no server.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"tableflow/internal/storage/sqldoc"
)

// Config holds SQLite connection settings.
type Config struct {
	DSN string
}

type dialect struct{}

func (dialect) Name() string { return "sqlite" }

func (dialect) CreateTable(t string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS "%s" (
	id TEXT PRIMARY KEY,
	doc TEXT NOT NULL,
	inserted_at TEXT NOT NULL DEFAULT (strftime('%%Y-%%m-%%dT%%H:%%M:%%fZ','now'))
)`, t)
}

func (dialect) InsertIgnore(t string) string {
	return fmt.Sprintf(`INSERT OR IGNORE INTO "%s" (id, doc) VALUES (?, ?)`, t)
}

func (dialect) SelectDocs(t string) string {
	return fmt.Sprintf(`SELECT doc FROM "%s" ORDER BY id`, t)
}

// NewRepository opens a SQLite database and returns a document store plus a
// close function.
func NewRepository(ctx context.Context, cfg Config) (*sqldoc.Store, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	// SQLite serializes writers; a single connection turns SQLITE_BUSY into
	// queueing inside database/sql and keeps the PRAGMAs below in effect.
	db.SetMaxOpenConns(1)
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA journal_mode = WAL;")

	s := sqldoc.New(db, dialect{})
	return s, func() { _ = s.Close() }, nil
}
