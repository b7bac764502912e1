/*
Package sqlstore provides the SQL-backed implementation of every store
the labor engine consumes.

PURPOSE:
  One implementation, two dialects:
    - sqlite3  (github.com/mattn/go-sqlite3): dev, tests, single node
    - postgres (github.com/jackc/pgx/v5/stdlib): production

  Queries are written with "?" placeholders and rebound to "$n" for
  Postgres. Decimals travel as strings (TEXT in SQLite, NUMERIC in
  Postgres); timestamps as fixed-width UTC strings so SQLite orders them
  lexically.

INTERFACES IMPLEMENTED:
  labor.TxStore:           time entries + ledger in one transaction
  labor.EmployeeDirectory: employees
  labor.ProjectStore:      projects
  ledger.Budgets:          project budgets
  ledger.SnapshotStore:    latest cost basis per project

APPEND-ONLY ENFORCEMENT:
  - No UPDATE statement on expenses anywhere in this package
  - A BEFORE UPDATE trigger rejects updates made by anything else
  - A unique index on reverses_id allows at most one reversal per record

VERSIONING:
  time_entries.version is compared in the WHERE clause of UPDATE and
  DELETE. Zero affected rows means either the row is gone (ErrNotFound)
  or someone else committed first (ErrConcurrentModification).

USAGE:
  store, err := sqlstore.Open(ctx, sqlstore.DriverSQLite, "./data/labor.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is migrated on Open() with golang-migrate from the embedded
  migrations/<dialect> directory.
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/labor-ledger/labor"
)

// Driver selects the SQL dialect.
type Driver string

const (
	DriverSQLite   Driver = "sqlite3"
	DriverPostgres Driver = "postgres"
)

// ParseDriver accepts the configured driver name.
func ParseDriver(name string) (Driver, error) {
	switch strings.ToLower(name) {
	case "", "sqlite", "sqlite3":
		return DriverSQLite, nil
	case "postgres", "postgresql", "pgx":
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", name)
	}
}

// sqlName is the database/sql driver registration name.
func (d Driver) sqlName() string {
	if d == DriverPostgres {
		return "pgx"
	}
	return "sqlite3"
}

// dialect names the migrations directory.
func (d Driver) dialect() string {
	if d == DriverPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Store implements all storage interfaces on a *sql.DB.
type Store struct {
	conn
	db     *sql.DB
	driver Driver
}

// Open connects, tunes the pool for the dialect and migrates the schema.
// For SQLite use ":memory:" for an in-memory database.
func Open(ctx context.Context, driver Driver, dsn string) (*Store, error) {
	db, err := sql.Open(driver.sqlName(), sqliteDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// One writer at a time. An in-memory database lives and dies with
		// its connection, so it must never be recycled.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return New(db, driver), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, driver Driver) *Store {
	return &Store{
		conn:   conn{q: db, driver: driver},
		db:     db,
		driver: driver,
	}
}

func sqliteDSN(driver Driver, dsn string) string {
	if driver != DriverSQLite || dsn == ":memory:" || strings.Contains(dsn, "?") {
		return dsn
	}
	return dsn + "?_busy_timeout=5000&_txlock=immediate&_foreign_keys=on&_journal_mode=WAL"
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the handle for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// =============================================================================
// TRANSACTIONAL STORE (labor.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction. The Store handed to fn
// reads and writes only through that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store labor.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", classify(err))
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx, driver: s.driver}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", classify(err))
	}
	return nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo). It is the only place rows
// leave the expenses table.
func (s *Store) Reset(ctx context.Context) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	tables := []string{"cost_snapshots", "expenses", "time_entries", "projects", "employees"}
	for _, table := range tables {
		if _, err := sqlTx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return sqlTx.Commit()
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn runs every statement against q. The Store uses the pool; WithTx
// hands out a conn bound to one transaction.
type conn struct {
	q      queryer
	driver Driver
}

func (c *conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.rebind(query), args...)
}

func (c *conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.rebind(query), args...)
}

func (c *conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.rebind(query), args...)
}

// rebind rewrites "?" placeholders to "$1", "$2", ... for Postgres.
func (c *conn) rebind(query string) string {
	if c.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
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

// =============================================================================
// VALUE ENCODING
// =============================================================================

// timestampLayout is fixed-width so TEXT columns sort chronologically.
const timestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// dbTime scans TEXT (SQLite) and TIMESTAMPTZ / DATE (Postgres) columns.
type dbTime struct {
	Time  time.Time
	Valid bool
}

func (t *dbTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*t = dbTime{}
		return nil
	case time.Time:
		*t = dbTime{Time: v.UTC(), Valid: true}
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into time", value)
	}
}

func (t *dbTime) parse(s string) error {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = dbTime{Time: parsed.UTC(), Valid: true}
			return nil
		}
	}
	return fmt.Errorf("cannot parse time %q", s)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
