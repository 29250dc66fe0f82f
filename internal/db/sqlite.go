// Package db opens the bridge's optional SQLite audit store.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the SQLite database at dbPath and runs schema migrations.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable WAL mode for better concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

// runMigrations executes the database schema migrations.
func runMigrations(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS connections (
		id TEXT PRIMARY KEY,
		remote_addr TEXT NOT NULL,
		connected_at DATETIME NOT NULL,
		disconnected_at DATETIME,
		failed_pending INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS webviews (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		view_column INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		dispose_origin TEXT,
		created_at DATETIME NOT NULL,
		disposed_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_webviews_status ON webviews(status);
	CREATE INDEX IF NOT EXISTS idx_connections_connected_at ON connections(connected_at);
	`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// NewTestDB creates a new in-memory database for testing.
func NewTestDB() (*sql.DB, error) {
	testDB, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	// Every pooled connection to :memory: would see its own empty database.
	testDB.SetMaxOpenConns(1)

	if err := runMigrations(testDB); err != nil {
		testDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return testDB, nil
}
