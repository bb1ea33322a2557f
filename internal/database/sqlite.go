package database

import (
	"context"
	"database/sql"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4/database"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "modernc.org/sqlite"
)

// NewSQLite returns an unopened DB backed by the SQLite file at path.
// Use ":memory:" for an in-memory database.
func NewSQLite(path string) *DB {
	return newDB(path, dialect{
		name:        "SQLite",
		driver:      "sqlite",
		placeholder: sq.Question,
		migrations:  "migrations/sqlite",
		open:        openSQLite,
		migrationDriver: func(conn *sql.DB) (database.Driver, error) {
			return sqlitemigrate.WithInstance(conn, &sqlitemigrate.Config{})
		},
	})
}

func openSQLite(ctx context.Context, path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time, so limit to one connection.
	// This also serializes every read-modify-write on an article.
	conn.SetMaxOpenConns(1)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	// WAL mode is not supported for in-memory databases.
	if path != ":memory:" {
		if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			conn.Close()
			return nil, fmt.Errorf("set wal mode: %w", err)
		}
	}
	return conn, nil
}
