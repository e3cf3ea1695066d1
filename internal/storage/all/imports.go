// Package all wires every built-in storage backend into the storage factory.
//
// It exists purely for side effects: importing it runs the init functions of
// each backend, which register their factories with the storage package.
// Importing it makes these kinds available:
//
//   - "memory"   (tableflow/internal/storage/memory)
//   - "mongo"    (tableflow/internal/storage/mongo)
//   - "postgres" (tableflow/internal/storage/postgres)
//   - "mysql"    (tableflow/internal/storage/mysql)
//   - "mssql"    (tableflow/internal/storage/mssql)
//   - "sqlite"   (tableflow/internal/storage/sqlite)
//
// A binary that needs only a subset can import the backends it wants
// directly instead of this package.
package all

import (
	_ "tableflow/internal/storage/memory"
	_ "tableflow/internal/storage/mongo"
	_ "tableflow/internal/storage/mssql"
	_ "tableflow/internal/storage/mysql"
	_ "tableflow/internal/storage/postgres"
	_ "tableflow/internal/storage/sqlite"
)
