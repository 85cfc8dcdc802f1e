package store

import "fmt"

// currentSchemaVersion is the latest schema version.
const currentSchemaVersion = 1

// Migrate runs forward migrations to bring the database schema up to date.
func (db *DB) Migrate() error {
	// Create the schema_version table if it does not exist.
	if _, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	version := 0
	row := db.conn.QueryRow("SELECT version FROM schema_version LIMIT 1")
	if err := row.Scan(&version); err != nil {
		// No rows means version 0 (fresh database).
		version = 0
	}

	if version < 1 {
		if err := db.migrateV1(); err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
	}

	return nil
}

// migrateV1 creates all initial tables and indexes. Timestamps are stored as
// unix milliseconds so keyset ordering compares integers.
func (db *DB) migrateV1() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS call_events (
			id                INTEGER PRIMARY KEY,
			occurred_at       INTEGER NOT NULL,
			subject           TEXT NOT NULL,
			direction         TEXT NOT NULL DEFAULT '',
			category          TEXT NOT NULL DEFAULT '',
			outcome           TEXT NOT NULL DEFAULT '',
			is_target         BOOLEAN NOT NULL DEFAULT false,
			duration_sec      REAL NOT NULL DEFAULT 0,
			quality_score     REAL,
			checklist_count   INTEGER,
			refusal_reason    TEXT NOT NULL DEFAULT '',
			refusal_code      TEXT NOT NULL DEFAULT '',
			refusal_group     TEXT NOT NULL DEFAULT '',
			requested_service TEXT NOT NULL DEFAULT '',
			ingested_at       INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS metric_values (
			event_id      INTEGER NOT NULL REFERENCES call_events(id),
			metric_code   TEXT NOT NULL,
			version       TEXT NOT NULL,
			metric_group  TEXT NOT NULL,
			value_numeric REAL,
			value_label   TEXT,
			value_json    TEXT,
			calc_method   TEXT NOT NULL,
			calc_context  TEXT NOT NULL,
			calc_source   TEXT NOT NULL DEFAULT '',
			updated_at    INTEGER NOT NULL,
			PRIMARY KEY (event_id, metric_code, version)
		)`,

		`CREATE TABLE IF NOT EXISTS calc_watermarks (
			version          TEXT NOT NULL,
			profile          TEXT NOT NULL,
			last_occurred_at INTEGER,
			last_event_id    INTEGER,
			lease_owner      TEXT,
			lease_expires_at INTEGER,
			updated_at       INTEGER NOT NULL,
			PRIMARY KEY (version, profile)
		)`,

		`CREATE TABLE IF NOT EXISTS dashboard_aggregates (
			subject      TEXT NOT NULL,
			period_type  TEXT NOT NULL,
			period_start INTEGER NOT NULL,
			period_end   INTEGER NOT NULL,
			version      TEXT NOT NULL,
			fields       TEXT NOT NULL,
			cached_at    INTEGER NOT NULL,
			PRIMARY KEY (subject, period_type, period_start)
		)`,

		`CREATE TABLE IF NOT EXISTS calc_runs (
			id           TEXT PRIMARY KEY,
			kind         TEXT NOT NULL,
			version      TEXT NOT NULL,
			profile      TEXT NOT NULL,
			window_start INTEGER,
			window_end   INTEGER,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			processed    INTEGER NOT NULL,
			status       TEXT NOT NULL,
			error        TEXT
		)`,

		// Indexes.
		`CREATE INDEX IF NOT EXISTS idx_call_events_order ON call_events(occurred_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_call_events_subject ON call_events(subject, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_metric_values_code ON metric_values(metric_code, version)`,
		`CREATE INDEX IF NOT EXISTS idx_dashboard_cached_at ON dashboard_aggregates(cached_at)`,
		`CREATE INDEX IF NOT EXISTS idx_calc_runs_started ON calc_runs(started_at)`,
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("executing %q: %w", stmt[:40], err)
		}
	}

	// Set schema version.
	if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", currentSchemaVersion); err != nil {
		return err
	}

	return tx.Commit()
}
