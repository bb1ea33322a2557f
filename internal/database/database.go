package database

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4/database"
)

// dialect captures what differs between the SQLite and PostgreSQL backends.
type dialect struct {
	name            string
	driver          string
	placeholder     sq.PlaceholderFormat
	highConcurrency bool
	migrations      string
	open            func(ctx context.Context, dsn string) (*sql.DB, error)
	migrationDriver func(conn *sql.DB) (database.Driver, error)
}

// DB is a SQL-backed Store. It is created unopened; the connection is
// established by Open or, lazily, by the first operation.
type DB struct {
	mu      sync.Mutex
	conn    *sql.DB
	dsn     string
	dialect dialect
	sb      sq.StatementBuilderType
}

func newDB(dsn string, d dialect) *DB {
	return &DB{
		dsn:     dsn,
		dialect: d,
		sb:      sq.StatementBuilder.PlaceholderFormat(d.placeholder),
	}
}

// Open connects to the database and applies pending migrations.
// Calling Open on an open DB is a no-op.
func (db *DB) Open(ctx context.Context) error {
	_, err := db.handle(ctx)
	return err
}

// Close closes the database connection. A closed DB reopens on next use.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn == nil {
		return nil
	}
	err := db.conn.Close()
	db.conn = nil
	return err
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return db.dialect.name
}

// SupportsHighConcurrency reports whether parallel writers are safe.
func (db *DB) SupportsHighConcurrency() bool {
	return db.dialect.highConcurrency
}

// handle returns the live connection, opening and migrating it on first use.
func (db *DB) handle(ctx context.Context) (*sql.DB, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if db.conn != nil {
		return db.conn, nil
	}

	conn, err := db.dialect.open(ctx, db.dsn)
	if err != nil {
		return nil, err
	}
	if err := db.migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	db.conn = conn
	return conn, nil
}

// withTx runs fn inside a transaction, committing on success.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	conn, err := db.handle(ctx)
	if err != nil {
		return err
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// exec builds and executes a statement, returning the affected row count.
func exec(ctx context.Context, e execer, b sq.Sqlizer) (int64, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := e.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
