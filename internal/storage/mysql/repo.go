// Package mysql implements a MySQL-backed storage.Sink on top of sqldoc.
// Documents land in a JSON column so they stay queryable with JSON_EXTRACT.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"tableflow/internal/storage/sqldoc"
)

// Config holds MySQL connection settings. DSN uses the go-sql-driver form,
// e.g. "user:pass@tcp(localhost:3306)/tableflow".
type Config struct {
	DSN string
}

type dialect struct{}

func (dialect) Name() string { return "mysql" }

func (dialect) CreateTable(t string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS `%s` ("+
		"id CHAR(32) NOT NULL PRIMARY KEY, "+
		"doc JSON NOT NULL, "+
		"inserted_at TIMESTAMP(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6))", t)
}

func (dialect) InsertIgnore(t string) string {
	return fmt.Sprintf("INSERT IGNORE INTO `%s` (id, doc) VALUES (?, ?)", t)
}

func (dialect) SelectDocs(t string) string {
	return fmt.Sprintf("SELECT CAST(doc AS CHAR) FROM `%s` ORDER BY id", t)
}

// NewRepository validates the DSN, opens a pool and returns a document store
// plus a close function.
func NewRepository(ctx context.Context, cfg Config) (*sqldoc.Store, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	mc.ParseTime = true

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("mysql: ping: %w", err)
	}

	s := sqldoc.New(db, dialect{})
	return s, func() { _ = s.Close() }, nil
}
