package store

import (
	"context"
	"database/sql"
)

// RecordRun stores the history record of a finished processor run.
func (db *DB) RecordRun(ctx context.Context, r Run) error {
	var start, end sql.NullInt64
	if !r.WindowStart.IsZero() {
		start = sql.NullInt64{Int64: toMillis(r.WindowStart), Valid: true}
	}
	if !r.WindowEnd.IsZero() {
		end = sql.NullInt64{Int64: toMillis(r.WindowEnd), Valid: true}
	}
	var errText sql.NullString
	if r.Error != "" {
		errText = sql.NullString{String: r.Error, Valid: true}
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO calc_runs
		 (id, kind, version, profile, window_start, window_end, started_at, finished_at, processed, status, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, r.Version, r.Profile, start, end,
		toMillis(r.StartedAt), toMillis(r.FinishedAt), r.Processed, r.Status, errText,
	)
	return err
}

// RecentRuns returns the n most recent runs, newest first.
func (db *DB) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, kind, version, profile, window_start, window_end, started_at, finished_at,
		        processed, status, error
		 FROM calc_runs ORDER BY started_at DESC, id LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var r Run
		var start, end sql.NullInt64
		var started, finished int64
		var errText sql.NullString
		if err := rows.Scan(&r.ID, &r.Kind, &r.Version, &r.Profile, &start, &end,
			&started, &finished, &r.Processed, &r.Status, &errText); err != nil {
			return nil, err
		}
		if start.Valid {
			r.WindowStart = fromMillis(start.Int64)
		}
		if end.Valid {
			r.WindowEnd = fromMillis(end.Int64)
		}
		r.StartedAt = fromMillis(started)
		r.FinishedAt = fromMillis(finished)
		r.Error = errText.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
