package db

import (
	"context"
	"fmt"
)

// Schema for the scheduling core. The partial unique index on open
// sessions is the hard backstop for the one-open-session-per-worker
// invariant; both Postgres and sqlite support it.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		published   BOOLEAN NOT NULL DEFAULT FALSE,
		algorithm   TEXT NOT NULL,
		tile_dimension  INTEGER NOT NULL,
		tile_border     REAL NOT NULL DEFAULT 0,
		min_results_per_assignment INTEGER NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		created_at  TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assignments (
		id          TEXT PRIMARY KEY,
		task_id     TEXT NOT NULL REFERENCES tasks(id),
		tile_ref    TEXT NOT NULL,
		pre_seg_ref TEXT NOT NULL DEFAULT '',
		merge_ref   TEXT NOT NULL DEFAULT '',
		min_results INTEGER NOT NULL,
		timeout_seconds INTEGER NOT NULL,
		workable    BOOLEAN,
		concluded   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at  TIMESTAMP NOT NULL,
		UNIQUE (task_id, tile_ref)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id            TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL REFERENCES assignments(id),
		worker_id     TEXT NOT NULL,
		start_time    TIMESTAMP NOT NULL,
		expiration_deadline TIMESTAMP NOT NULL,
		close_time    TIMESTAMP,
		result_ref    TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS one_open_session_per_worker
		ON sessions (worker_id) WHERE close_time IS NULL`,
	`CREATE INDEX IF NOT EXISTS sessions_by_assignment
		ON sessions (assignment_id)`,
	`CREATE TABLE IF NOT EXISTS session_stats (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id),
		mileage    INTEGER
	)`,
}

// Migrate creates the schema if it does not exist yet.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := d.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}
