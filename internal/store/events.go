package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

const eventColumns = `id, occurred_at, subject, direction, category, outcome, is_target,
	duration_sec, quality_score, checklist_count, refusal_reason, refusal_code,
	refusal_group, requested_service`

// InsertEvents writes events to the feed table in one transaction. Events are
// immutable: an id that already exists is left untouched. It returns the
// number of new rows.
func (db *DB) InsertEvents(ctx context.Context, events []calls.Event) (int, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO call_events
		(`+eventColumns+`, ingested_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return 0, err
	}
	defer func() { _ = stmt.Close() }()

	now := toMillis(db.now())
	inserted := 0
	for _, e := range events {
		var checklist sql.NullInt64
		if e.ChecklistCount != nil {
			checklist = sql.NullInt64{Int64: int64(*e.ChecklistCount), Valid: true}
		}
		var score sql.NullFloat64
		if e.QualityScore != nil {
			score = sql.NullFloat64{Float64: *e.QualityScore, Valid: true}
		}
		res, err := stmt.ExecContext(ctx,
			e.ID, toMillis(e.OccurredAt), e.Subject, e.Direction, calls.NormalizeCategory(e.Category),
			e.Outcome, e.IsTarget, e.DurationSec, score, checklist, e.RefusalReason,
			e.RefusalCode, e.RefusalGroup, e.RequestedService, now,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting event %d: %w", e.ID, err)
		}
		n, _ := res.RowsAffected()
		inserted += int(n)
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return inserted, nil
}

// GetEvent returns the event with the given id, or nil if it does not exist.
func (db *DB) GetEvent(ctx context.Context, id int64) (*calls.Event, error) {
	row := db.conn.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM call_events WHERE id = ?", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// EventsAfter returns up to limit events strictly after cursor in
// (occurred_at, id) order.
func (db *DB) EventsAfter(ctx context.Context, cursor calls.Cursor, limit int) ([]calls.Event, error) {
	if cursor.IsZero() {
		return db.queryEvents(ctx,
			"SELECT "+eventColumns+" FROM call_events ORDER BY occurred_at, id LIMIT ?", limit)
	}
	ms := toMillis(cursor.OccurredAt)
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM call_events
		 WHERE occurred_at > ? OR (occurred_at = ? AND id > ?)
		 ORDER BY occurred_at, id LIMIT ?`,
		ms, ms, cursor.EventID, limit)
}

// EventsBetween returns up to limit events with start <= occurred_at < end
// that sort strictly after cursor, in (occurred_at, id) order. Pass a zero
// cursor for the first page.
func (db *DB) EventsBetween(ctx context.Context, start, end time.Time, cursor calls.Cursor, limit int) ([]calls.Event, error) {
	if cursor.IsZero() {
		return db.queryEvents(ctx,
			`SELECT `+eventColumns+` FROM call_events
			 WHERE occurred_at >= ? AND occurred_at < ?
			 ORDER BY occurred_at, id LIMIT ?`,
			toMillis(start), toMillis(end), limit)
	}
	ms := toMillis(cursor.OccurredAt)
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM call_events
		 WHERE occurred_at >= ? AND occurred_at < ?
		   AND (occurred_at > ? OR (occurred_at = ? AND id > ?))
		 ORDER BY occurred_at, id LIMIT ?`,
		toMillis(start), toMillis(end), ms, ms, cursor.EventID, limit)
}

// EventsForSubject returns every event of subject in [start, end). The
// subject "*" matches all operators.
func (db *DB) EventsForSubject(ctx context.Context, subject string, start, end time.Time) ([]calls.Event, error) {
	if subject == AllSubjects {
		return db.queryEvents(ctx,
			`SELECT `+eventColumns+` FROM call_events
			 WHERE occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at, id`,
			toMillis(start), toMillis(end))
	}
	return db.queryEvents(ctx,
		`SELECT `+eventColumns+` FROM call_events
		 WHERE subject = ? AND occurred_at >= ? AND occurred_at < ? ORDER BY occurred_at, id`,
		subject, toMillis(start), toMillis(end))
}

// CountEvents returns the number of events in the feed table.
func (db *DB) CountEvents(ctx context.Context) (int, error) {
	var n int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM call_events").Scan(&n)
	return n, err
}

// AllSubjects is the subject that aggregates across every operator.
const AllSubjects = "*"

func (db *DB) queryEvents(ctx context.Context, query string, args ...any) ([]calls.Event, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []calls.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(s scanner) (calls.Event, error) {
	var e calls.Event
	var occurred int64
	var score sql.NullFloat64
	var checklist sql.NullInt64
	if err := s.Scan(
		&e.ID, &occurred, &e.Subject, &e.Direction, &e.Category, &e.Outcome, &e.IsTarget,
		&e.DurationSec, &score, &checklist, &e.RefusalReason, &e.RefusalCode,
		&e.RefusalGroup, &e.RequestedService,
	); err != nil {
		return calls.Event{}, err
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
	return e, nil
}
