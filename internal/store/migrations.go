package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all RingFlow tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS waiting (
		code     TEXT PRIMARY KEY,
		score    REAL NOT NULL,
		added_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_waiting_score ON waiting(score)`,

	// Field/value metadata per waiting instruction.
	`CREATE TABLE IF NOT EXISTS task_meta (
		code  TEXT NOT NULL,
		field TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (code, field)
	)`,

	`CREATE TABLE IF NOT EXISTS stats (
		key        TEXT PRIMARY KEY,
		ema1       REAL NOT NULL,
		ema2       REAL NOT NULL,
		mean       REAL NOT NULL,
		std        REAL NOT NULL,
		count      INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS node_availability (
		node         TEXT PRIMARY KEY,
		available_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS start_markers (
		code       TEXT PRIMARY KEY,
		started_at INTEGER NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS container_last (
		container   TEXT PRIMARY KEY,
		last_finish INTEGER NOT NULL,
		last_to     TEXT NOT NULL
	)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
}{
	// Elapsed time written back by completion feedback.
	{
		table:    "start_markers",
		column:   "duration_ms",
		alterSQL: "ALTER TABLE start_markers ADD COLUMN duration_ms INTEGER",
	},
}

// migrate executes all schema DDL statements and alter migrations.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	exists, err := columnExists(ctx, db, table, column)
	if err != nil || exists {
		return err
	}
	_, err = db.ExecContext(ctx, alterSQL)
	return err
}

func columnExists(ctx context.Context, db *sql.DB, table, column string) (bool, error) {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return false, err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return false, err
		}
		if strings.EqualFold(name, column) {
			return true, nil
		}
	}
	return false, rows.Err()
}
