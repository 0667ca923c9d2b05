package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// runMigrations creates any missing tables for the dialect.
//
// SQLite migrates through the caller's handle so that in-memory databases see
// the schema; the migrate instance is not closed because closing it would
// close that handle. Postgres migrates over a dedicated handle opened from dsn.
func runMigrations(db *sql.DB, d dialect, dsn string) error {
	sub, err := fs.Sub(migrationsFS, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("open %s migrations: %w", d.name, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	var (
		driver   database.Driver
		closeAll bool
	)
	switch d.name {
	case DriverPostgres:
		migrateDB, err := sql.Open(d.driverName, dsn)
		if err != nil {
			return fmt.Errorf("open migration database: %w", err)
		}
		driver, err = pgxmigrate.WithInstance(migrateDB, &pgxmigrate.Config{})
		if err != nil {
			migrateDB.Close()
			return fmt.Errorf("create pgx driver: %w", err)
		}
		closeAll = true
	default:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
		if err != nil {
			return fmt.Errorf("create sqlite driver: %w", err)
		}
	}

	m, err := migrate.NewWithInstance("iofs", src, d.name, driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	if closeAll {
		defer m.Close()
	} else {
		defer src.Close()
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
