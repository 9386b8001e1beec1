package remote

import (
	"context"
	"database/sql"
	"fmt"

	"worklog/internal/storage"
)

// schemaStatements create the tables the store consumes. Rows are
// scoped by user_id everywhere; the hosted deployment enforces the
// same scoping with row-level security, here it is done in SQL.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS current_day (
		user_id        TEXT PRIMARY KEY,
		is_day_started INTEGER NOT NULL DEFAULT 0,
		day_start_time TEXT,
		updated_at     TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS tasks (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL,
		title         TEXT NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		start_time    TEXT NOT NULL,
		end_time      TEXT,
		duration      INTEGER,
		project_name  TEXT,
		client        TEXT,
		category_id   TEXT,
		is_current    INTEGER NOT NULL DEFAULT 0,
		day_record_id TEXT,
		position      INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_user_current ON tasks(user_id, is_current)`,
	`CREATE INDEX IF NOT EXISTS idx_tasks_day_record ON tasks(day_record_id)`,
	`CREATE TABLE IF NOT EXISTS archived_days (
		id             TEXT PRIMARY KEY,
		user_id        TEXT NOT NULL,
		date           TEXT NOT NULL,
		start_time     TEXT NOT NULL,
		end_time       TEXT NOT NULL,
		total_duration INTEGER NOT NULL DEFAULT 0,
		notes          TEXT NOT NULL DEFAULT '',
		position       INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_archived_days_user ON archived_days(user_id)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		client      TEXT NOT NULL,
		hourly_rate REAL,
		color       TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		name        TEXT NOT NULL,
		color       TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		position    INTEGER NOT NULL DEFAULT 0
	)`,
}

// requiredTables drives the capability probe.
var requiredTables = []string{"current_day", "tasks", "archived_days", "projects", "categories"}

func initSchema(db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// probeSchema checks every required table exists. Run once per
// process; the cached result decides whether callers degrade to
// local-only persistence.
func probeSchema(ctx context.Context, db *sql.DB) error {
	for _, table := range requiredTables {
		var name string
		err := db.QueryRowContext(ctx,
			`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&name)
		if err == sql.ErrNoRows {
			return fmt.Errorf("missing table %q: %w", table, storage.ErrSchemaUnavailable)
		}
		if err != nil {
			return fmt.Errorf("probe table %q: %w", table, err)
		}
	}
	return nil
}
