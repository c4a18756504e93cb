// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the Go binary as a single
// file, with no separate server to run. ":memory:" gives every test its own
// throwaway database.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, so it needs a C compiler and cross-compilation
// becomes painful. modernc.org/sqlite is a pure Go translation of SQLite.
//
// MIGRATIONS:
// Schema changes live in migrations/*.sql, embedded into the binary and
// applied by goose on startup. goose records what it has applied in its own
// goose_db_version table, so New is safe to call on an existing database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/sakif/entity-auth/internal/entity"

	// BLANK IMPORT:
	// The sqlite package's init() registers a database/sql driver named
	// "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DB wraps a sql.DB connection pool and the hook pipeline that runs before
// every write.
//
// WHY DOES THE STORE OWN THE PIPELINE?
// Hooks must see the data that is about to be written, after the caller is
// done with it and before the SQL runs. The store is the only place that
// sits at exactly that point for every write path (Create, Update, Patch).
type DB struct {
	conn  *sql.DB
	hooks *entity.Pipeline
}

// New opens the database at dbPath, applies pending migrations and returns
// a store that runs hooks before each write. A nil pipeline means no hooks.
//
// dbPath examples:
//   - "data/auth.db"  → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests)
func New(dbPath string, hooks *entity.Pipeline) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// SQLite allows one writer at a time, and every connection to ":memory:"
	// is a separate database. A single connection avoids both problems.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	if err := migrate(context.Background(), conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn, hooks: hooks}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// gooseUp is a seam for testing migration failures.
var gooseUp = func(ctx context.Context, conn *sql.DB, dir string) error {
	return goose.UpContext(ctx, conn, dir)
}

// migrate applies every embedded migration that has not run yet.
//
// goose keeps its settings in package globals, so they are set on every call.
func migrate(ctx context.Context, conn *sql.DB) error {
	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	return gooseUp(ctx, conn, "migrations")
}
