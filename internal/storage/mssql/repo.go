// Package mssql implements a Microsoft SQL Server storage.Sink on top of
// sqldoc using go-mssqldb.
package mssql

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"tableflow/internal/storage/sqldoc"
)

// Config holds MSSQL connection settings.
type Config struct {
	DSN string
}

type dialect struct{}

func (dialect) Name() string { return "mssql" }

func (dialect) CreateTable(t string) string {
	return fmt.Sprintf(`IF OBJECT_ID(N'dbo.%[1]s', N'U') IS NULL
CREATE TABLE dbo.[%[1]s] (
	id CHAR(32) NOT NULL PRIMARY KEY,
	doc NVARCHAR(MAX) NOT NULL,
	inserted_at DATETIME2 NOT NULL DEFAULT SYSUTCDATETIME()
)`, t)
}

// UPDLOCK+HOLDLOCK keeps two sessions from both passing NOT EXISTS for the
// same id.
func (dialect) InsertIgnore(t string) string {
	return fmt.Sprintf(`INSERT INTO dbo.[%[1]s] (id, doc)
SELECT @p1, @p2 WHERE NOT EXISTS (SELECT 1 FROM dbo.[%[1]s] WITH (UPDLOCK, HOLDLOCK) WHERE id = @p1)`, t)
}

func (dialect) SelectDocs(t string) string {
	return fmt.Sprintf(`SELECT doc FROM dbo.[%s] ORDER BY id`, t)
}

// NewRepository constructs a document store and returns a Close function for
// cleanup.
func NewRepository(ctx context.Context, cfg Config) (*sqldoc.Store, func(), error) {
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	s := sqldoc.New(db, dialect{})
	return s, func() { _ = s.Close() }, nil
}
