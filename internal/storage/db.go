package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"expense-tracker/internal/apperr"

	// Register the pgx database/sql driver
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

type dialect struct {
	name       string
	driverName string
	// incurredAt selects incurred_at as YYYY-MM-DD text.
	incurredAt string
	positional bool
}

var dialects = map[string]dialect{
	DriverSQLite:   {name: DriverSQLite, driverName: "sqlite", incurredAt: "incurred_at"},
	DriverPostgres: {name: DriverPostgres, driverName: "pgx", incurredAt: "to_char(incurred_at, 'YYYY-MM-DD')", positional: true},
}

// rebind rewrites ? placeholders as $1, $2, ... for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// DB wraps a sql.DB connection pool.
type DB struct {
	pool    *sql.DB
	dialect dialect
}

// NewDB opens a SQLite database at path and runs migrations.
func NewDB(path string) (*DB, error) {
	return Open(context.Background(), DriverSQLite, path)
}

// Open opens a database for driver ("sqlite" or "postgres"), verifies the
// connection and creates any missing tables.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	d, ok := dialects[driver]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	openDSN := dsn
	memory := false
	if d.name == DriverSQLite {
		memory = isMemoryPath(dsn)
		if !memory {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, fmt.Errorf("create db directory: %w", err)
			}
		}
		openDSN = sqliteDSN(dsn)
	}

	pool, err := sql.Open(d.driverName, openDSN)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", d.name, err)
	}
	if memory {
		// Every connection to :memory: is a separate database.
		pool.SetMaxOpenConns(1)
	}

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(pool, d, dsn); err != nil {
		pool.Close()
		return nil, err
	}

	return &DB{pool: pool, dialect: d}, nil
}

func isMemoryPath(path string) bool {
	return strings.Contains(path, ":memory:") || strings.Contains(path, "mode=memory")
}

// sqliteDSN enables foreign keys, which SQLite turns off per connection by
// default, so that deleting a user cascades to its expenses.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// withConn checks out one connection for the duration of fn and always
// returns it to the pool.
func (db *DB) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := db.pool.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()
	return fn(conn)
}

// Ping verifies the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.PingContext(ctx)
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.pool.Close()
}

// classify turns unique-constraint violations into conflict errors.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && isSQLiteUnique(se) {
		return apperr.Wrap(apperr.CodeConflict, "", err)
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) && pe.Code == "23505" {
		return apperr.Wrap(apperr.CodeConflict, "", err)
	}
	return err
}

func isSQLiteUnique(se *sqlite.Error) bool {
	code := se.Code()
	if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return true
	}
	// Primary result code only, when extended codes are not reported.
	return code&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(se.Error(), "UNIQUE")
}
