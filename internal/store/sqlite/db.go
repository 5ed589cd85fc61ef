// Package sqlite provides a single-file SQLite backend for opportunities and
// relationships, used when no PostgreSQL instance is configured.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite handle shared by the stores in this package.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path and ensures the schema exists.
// The special path ":memory:" keeps everything in memory.
func Open(ctx context.Context, path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL lets readers proceed

	for _, pragma := range []string{`PRAGMA journal_mode=WAL`, `PRAGMA busy_timeout=5000`} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}
	d := &DB{db: db}
	if err := d.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create tables: %w", err)
	}
	return d, nil
}

// Close closes the underlying database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping checks the database handle.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Money is stored as decimal text and times as unix nanoseconds so values
// round-trip exactly.
func (d *DB) createTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS opportunities (
			id               TEXT PRIMARY KEY,
			strategy         TEXT NOT NULL,
			markets          TEXT NOT NULL DEFAULT '[]',
			legs             TEXT NOT NULL,
			size             INTEGER NOT NULL,
			gross_profit     TEXT NOT NULL,
			total_fees       TEXT NOT NULL,
			net_profit       TEXT NOT NULL,
			required_capital TEXT NOT NULL,
			confidence       REAL NOT NULL,
			detected_at      INTEGER NOT NULL,
			expires_at       INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_opportunities_detected_at ON opportunities(detected_at)`,
		`CREATE TABLE IF NOT EXISTS relationships (
			ticker_a      TEXT NOT NULL,
			ticker_b      TEXT NOT NULL,
			kind          TEXT NOT NULL,
			confidence    REAL NOT NULL,
			reasoning     TEXT NOT NULL,
			discovered_at INTEGER NOT NULL,
			PRIMARY KEY (ticker_a, ticker_b)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relationships_discovered_at ON relationships(discovered_at)`,
	}
	for _, stmt := range stmts {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
