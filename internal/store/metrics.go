package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/blackwell-systems/callwatch/internal/catalogue"
)

// Upsert writes values in one transaction. A value whose (event_id,
// metric_code, version) already exists is overwritten, so re-running a batch
// never duplicates rows.
func (db *DB) Upsert(ctx context.Context, values []catalogue.MetricValue) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO metric_values
		(event_id, metric_code, version, metric_group, value_numeric, value_label,
		 value_json, calc_method, calc_context, calc_source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(event_id, metric_code, version) DO UPDATE SET
			metric_group  = excluded.metric_group,
			value_numeric = excluded.value_numeric,
			value_label   = excluded.value_label,
			value_json    = excluded.value_json,
			calc_method   = excluded.calc_method,
			calc_context  = excluded.calc_context,
			calc_source   = excluded.calc_source,
			updated_at    = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer func() { _ = stmt.Close() }()

	now := toMillis(db.now())
	for _, v := range values {
		var numeric sql.NullFloat64
		if v.Numeric != nil {
			numeric = sql.NullFloat64{Float64: *v.Numeric, Valid: true}
		}
		var label, payload sql.NullString
		if v.Label != nil {
			label = sql.NullString{String: *v.Label, Valid: true}
		}
		if len(v.Payload) > 0 {
			payload = sql.NullString{String: string(v.Payload), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			v.EventID, v.Code, v.Version, string(v.Group), numeric, label, payload,
			string(v.Method), string(v.Context), v.Source, now,
		); err != nil {
			return fmt.Errorf("upserting %s for event %d: %w", v.Code, v.EventID, err)
		}
	}
	return tx.Commit()
}

const valueColumns = `event_id, metric_code, version, metric_group, value_numeric,
	value_label, value_json, calc_method, calc_context, calc_source, updated_at`

// GetByEvent returns every stored value of an event across all versions,
// ordered by version, group and code.
func (db *DB) GetByEvent(ctx context.Context, eventID int64) ([]catalogue.MetricValue, error) {
	return db.queryValues(ctx,
		`SELECT `+valueColumns+` FROM metric_values WHERE event_id = ?
		 ORDER BY version, metric_group, metric_code`, eventID)
}

// ValuesForEvents returns the values of the given codes under version for
// every event of subject in [start, end), keyed by event id then code.
func (db *DB) ValuesForEvents(ctx context.Context, subject, version string, start, end time.Time, codes ...string) (map[int64]map[string]catalogue.MetricValue, error) {
	query := `SELECT mv.event_id, mv.metric_code, mv.version, mv.metric_group, mv.value_numeric,
		mv.value_label, mv.value_json, mv.calc_method, mv.calc_context, mv.calc_source, mv.updated_at
		FROM metric_values mv JOIN call_events e ON e.id = mv.event_id
		WHERE mv.version = ? AND e.occurred_at >= ? AND e.occurred_at < ?`
	args := []any{version, toMillis(start), toMillis(end)}
	if subject != AllSubjects {
		query += " AND e.subject = ?"
		args = append(args, subject)
	}
	if len(codes) > 0 {
		query += " AND mv.metric_code IN (?" + repeatPlaceholders(len(codes)-1) + ")"
		for _, c := range codes {
			args = append(args, c)
		}
	}
	values, err := db.queryValues(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	out := make(map[int64]map[string]catalogue.MetricValue)
	for _, v := range values {
		m, ok := out[v.EventID]
		if !ok {
			m = make(map[string]catalogue.MetricValue)
			out[v.EventID] = m
		}
		m[v.Code] = v
	}
	return out, nil
}

// CountValues returns the number of stored values for version.
func (db *DB) CountValues(ctx context.Context, version string) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM metric_values WHERE version = ?", version).Scan(&n)
	return n, err
}

// GetStatistics summarizes the numeric values of code under version for
// events that occurred in [from, to). Zero bounds are open.
func (db *DB) GetStatistics(ctx context.Context, code, version string, from, to time.Time) (Statistics, error) {
	lo, hi := bounds(from, to)
	var (
		count                int
		avg, lowest, top, sq sql.NullFloat64
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(mv.value_numeric), AVG(mv.value_numeric), MIN(mv.value_numeric),
		        MAX(mv.value_numeric), AVG(mv.value_numeric * mv.value_numeric)
		 FROM metric_values mv JOIN call_events e ON e.id = mv.event_id
		 WHERE mv.metric_code = ? AND mv.version = ? AND mv.value_numeric IS NOT NULL
		   AND e.occurred_at >= ? AND e.occurred_at < ?`,
		code, version, lo, hi,
	).Scan(&count, &avg, &lowest, &top, &sq)
	if err != nil {
		return Statistics{}, err
	}
	s := Statistics{Code: code, Version: version, Count: count}
	if count == 0 {
		return s, nil
	}
	s.Avg, s.Min, s.Max = avg.Float64, lowest.Float64, top.Float64
	// Population deviation; rounding can push the variance slightly negative.
	if variance := sq.Float64 - avg.Float64*avg.Float64; variance > 0 {
		s.Stddev = math.Sqrt(variance)
	}
	return s, nil
}

// LabelDistribution counts the labels of code under version for events that
// occurred in [from, to), most frequent first.
func (db *DB) LabelDistribution(ctx context.Context, code, version string, from, to time.Time) ([]LabelCount, error) {
	lo, hi := bounds(from, to)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT mv.value_label, COUNT(*) AS n
		 FROM metric_values mv JOIN call_events e ON e.id = mv.event_id
		 WHERE mv.metric_code = ? AND mv.version = ? AND mv.value_label IS NOT NULL
		   AND e.occurred_at >= ? AND e.occurred_at < ?
		 GROUP BY mv.value_label ORDER BY n DESC, mv.value_label`,
		code, version, lo, hi,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []LabelCount
	for rows.Next() {
		var lc LabelCount
		if err := rows.Scan(&lc.Label, &lc.Count); err != nil {
			return nil, err
		}
		out = append(out, lc)
	}
	return out, rows.Err()
}

// HotMissedLeads returns target calls that ended as a lead without booking
// and whose conversion forecast under version is at least threshold, best
// first.
func (db *DB) HotMissedLeads(ctx context.Context, version string, threshold float64, from, to time.Time, limit int) ([]Lead, error) {
	lo, hi := bounds(from, to)
	rows, err := db.conn.QueryContext(ctx,
		`SELECT e.id, e.occurred_at, e.subject, e.direction, e.category, e.outcome, e.is_target,
		        e.duration_sec, e.quality_score, e.checklist_count, e.refusal_reason, e.refusal_code,
		        e.refusal_group, e.requested_service, mv.value_numeric
		 FROM call_events e JOIN metric_values mv ON mv.event_id = e.id
		 WHERE mv.metric_code = 'conversion_prob_forecast' AND mv.version = ?
		   AND mv.value_numeric >= ? AND e.is_target AND e.outcome = 'lead_no_record'
		   AND e.occurred_at >= ? AND e.occurred_at < ?
		 ORDER BY mv.value_numeric DESC, e.occurred_at DESC, e.id DESC
		 LIMIT ?`,
		version, threshold, lo, hi, limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var leads []Lead
	for rows.Next() {
		var l Lead
		var occurred int64
		var score sql.NullFloat64
		var checklist sql.NullInt64
		e := &l.Event
		if err := rows.Scan(
			&e.ID, &occurred, &e.Subject, &e.Direction, &e.Category, &e.Outcome, &e.IsTarget,
			&e.DurationSec, &score, &checklist, &e.RefusalReason, &e.RefusalCode,
			&e.RefusalGroup, &e.RequestedService, &l.Probability,
		); err != nil {
			return nil, err
		}
		e.OccurredAt = fromMillis(occurred)
		if score.Valid {
			v := score.Float64
			e.QualityScore = &v
		}
		if checklist.Valid {
			v := int(checklist.Int64)
			e.ChecklistCount = &v
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// repeatPlaceholders returns n additional ", ?" bind placeholders.
func repeatPlaceholders(n int) string {
	return strings.Repeat(", ?", n)
}

func (db *DB) queryValues(ctx context.Context, query string, args ...any) ([]catalogue.MetricValue, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []catalogue.MetricValue
	for rows.Next() {
		var v catalogue.MetricValue
		var group, method, calcCtx string
		var numeric sql.NullFloat64
		var label, payload sql.NullString
		var updated int64
		if err := rows.Scan(&v.EventID, &v.Code, &v.Version, &group, &numeric, &label,
			&payload, &method, &calcCtx, &v.Source, &updated); err != nil {
			return nil, err
		}
		v.Group = catalogue.Group(group)
		v.Method = catalogue.Method(method)
		v.Context = catalogue.Context(calcCtx)
		v.UpdatedAt = fromMillis(updated)
		if numeric.Valid {
			n := numeric.Float64
			v.Numeric = &n
		}
		if label.Valid {
			s := label.String
			v.Label = &s
		}
		if payload.Valid {
			v.Payload = []byte(payload.String)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// bounds converts an optional [from, to) window into millisecond limits.
func bounds(from, to time.Time) (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	if !from.IsZero() {
		lo = toMillis(from)
	}
	if !to.IsZero() {
		hi = toMillis(to)
	}
	return lo, hi
}
