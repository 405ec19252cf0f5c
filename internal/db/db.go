// Package db owns the Postgres connection pool and the raw-SQL schema for
// the knowledge graph and generation-run history.
package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DB wraps a database/sql connection pool for PostgreSQL.
type DB struct {
	Pool *sql.DB
}

// New creates a new database connection.
// The caller must import a PostgreSQL driver (e.g., _ "github.com/lib/pq").
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// Migrate runs the database schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Pool.ExecContext(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS documents (
    name        TEXT PRIMARY KEY,
    source_path TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL DEFAULT '',
    is_rule     BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_documents_is_rule ON documents(is_rule);

CREATE TABLE IF NOT EXISTS headings (
    id                TEXT PRIMARY KEY,
    document_name     TEXT NOT NULL REFERENCES documents(name) ON DELETE CASCADE,
    parent_id         TEXT NOT NULL DEFAULT '',
    title             TEXT NOT NULL,
    level             INTEGER NOT NULL,
    start_line        INTEGER NOT NULL,
    end_line          INTEGER NOT NULL,
    raw_content       TEXT NOT NULL DEFAULT '',
    summary           TEXT NOT NULL DEFAULT '',
    summary_embedding JSONB NOT NULL DEFAULT '[]',
    child_ids         JSONB NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_headings_document_name ON headings(document_name);

CREATE TABLE IF NOT EXISTS generation_runs (
    id                    TEXT PRIMARY KEY,
    user_config           JSONB NOT NULL DEFAULT '{}',
    status                TEXT NOT NULL DEFAULT 'running',
    current_stage         TEXT NOT NULL DEFAULT '',
    validator_retry_count INTEGER NOT NULL DEFAULT 0,
    state                 JSONB NOT NULL DEFAULT '{}',
    started_at            TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at          TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_generation_runs_status ON generation_runs(status);
`
