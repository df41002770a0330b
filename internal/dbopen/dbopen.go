// Package dbopen opens a bun database for the supported drivers.
package dbopen

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// MemoryDSN is a shared in-memory SQLite database, mostly for tests.
const MemoryDSN = "file::memory:?cache=shared"

// Open connects to dsn with driver and wraps the handle in bun.
func Open(driver, dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	switch driver {
	case DriverSQLite:
		// a single connection keeps in-memory databases consistent and
		// serializes writers
		sqldb.SetMaxOpenConns(1)
		return bun.NewDB(sqldb, sqlitedialect.New()), nil
	case DriverPostgres:
		return bun.NewDB(sqldb, pgdialect.New()), nil
	default:
		_ = sqldb.Close()
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
