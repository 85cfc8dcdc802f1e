package store

import (
	"context"
	"database/sql"
	"time"
)

// GetAggregate returns the cached aggregate for the key, or nil if none.
func (db *DB) GetAggregate(ctx context.Context, subject, periodType string, periodStart time.Time) (*AggregateRow, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT subject, period_type, period_start, period_end, version, fields, cached_at
		 FROM dashboard_aggregates WHERE subject = ? AND period_type = ? AND period_start = ?`,
		subject, periodType, toMillis(periodStart),
	)
	var a AggregateRow
	var start, end, cached int64
	var fields string
	err := row.Scan(&a.Subject, &a.PeriodType, &start, &end, &a.Version, &fields, &cached)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.PeriodStart = fromMillis(start)
	a.PeriodEnd = fromMillis(end)
	a.CachedAt = fromMillis(cached)
	a.Fields = []byte(fields)
	return &a, nil
}

// PutAggregate inserts or replaces the cached aggregate for its key.
func (db *DB) PutAggregate(ctx context.Context, a AggregateRow) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO dashboard_aggregates
		 (subject, period_type, period_start, period_end, version, fields, cached_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(subject, period_type, period_start) DO UPDATE SET
			period_end = excluded.period_end,
			version    = excluded.version,
			fields     = excluded.fields,
			cached_at  = excluded.cached_at`,
		a.Subject, a.PeriodType, toMillis(a.PeriodStart), toMillis(a.PeriodEnd),
		a.Version, string(a.Fields), toMillis(a.CachedAt),
	)
	return err
}

// DeleteAggregates removes cached aggregates matching f and returns how many
// rows were deleted.
func (db *DB) DeleteAggregates(ctx context.Context, f AggregateFilter) (int64, error) {
	query := "DELETE FROM dashboard_aggregates WHERE 1=1"
	var args []any
	if f.Subject != "" {
		query += " AND subject = ?"
		args = append(args, f.Subject)
	}
	if f.PeriodType != "" {
		query += " AND period_type = ?"
		args = append(args, f.PeriodType)
	}
	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CleanupAggregates removes aggregates cached before cutoff.
func (db *DB) CleanupAggregates(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := db.conn.ExecContext(ctx,
		"DELETE FROM dashboard_aggregates WHERE cached_at < ?", toMillis(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountAggregates returns the number of cached aggregates.
func (db *DB) CountAggregates(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM dashboard_aggregates").Scan(&n)
	return n, err
}
