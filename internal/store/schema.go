// Package store is the SQLite-backed note store with optional FTS5 full-text search.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS notes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	kind        TEXT    NOT NULL DEFAULT 'NOTE',
	folder      TEXT    NOT NULL DEFAULT 'NOTES',
	title       TEXT    NOT NULL DEFAULT '',
	body        TEXT    NOT NULL DEFAULT '',
	spans       TEXT    NOT NULL DEFAULT '[]',
	items       TEXT    NOT NULL DEFAULT '[]',
	labels      TEXT    NOT NULL DEFAULT '[]',
	pinned      INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL DEFAULT 0,
	modified_at INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_notes_folder ON notes(folder, modified_at);

CREATE TABLE IF NOT EXISTS labels (
	name TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS imports (
	checksum    TEXT PRIMARY KEY,
	name        TEXT    NOT NULL,
	imported_at INTEGER NOT NULL
);
`

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DB wraps a sql.DB with note-store operations.
type DB struct {
	conn      *sql.DB
	readLimit int64
}

// Option configures a DB.
type Option func(*DB)

// WithReadLimit sets the physical read limit in bytes. Get refuses rows whose
// body is larger with apperr.ErrOversizedRead. Zero disables the check.
func WithReadLimit(bytes int64) Option {
	return func(db *DB) {
		db.readLimit = bytes
	}
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string, opts ...Option) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply fts schema: %w", err)
	}
	db := &DB{conn: conn}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Queries returns a non-transactional query set. Each call runs on its own.
func (db *DB) Queries() *Queries {
	return &Queries{db: db.conn, readLimit: db.readLimit}
}

// InTx runs fn inside a single transaction, committing when fn returns nil.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Queries{db: tx, readLimit: db.readLimit, inTx: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
