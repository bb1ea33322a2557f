package database

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// migrate applies the dialect's embedded migrations to conn.
// The migrate instance is deliberately not closed: closing it would close conn.
func (db *DB) migrate(conn *sql.DB) error {
	src, err := iofs.New(migrationsFS, db.dialect.migrations)
	if err != nil {
		return err
	}
	drv, err := db.dialect.migrationDriver(conn)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, db.dialect.driver, drv)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}
