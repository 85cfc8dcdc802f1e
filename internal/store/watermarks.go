package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

// AcquireLease claims the watermark row of (version, profile) for owner until
// now+ttl. The row is created on first use. It fails with ErrLeaseHeld when
// another owner holds an unexpired lease.
func (db *DB) AcquireLease(ctx context.Context, version, profile, owner string, ttl time.Duration) error {
	now := db.now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO calc_watermarks (version, profile, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(version, profile) DO NOTHING`,
		version, profile, toMillis(now),
	); err != nil {
		return fmt.Errorf("creating watermark row: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE calc_watermarks SET lease_owner = ?, lease_expires_at = ?
		 WHERE version = ? AND profile = ?
		   AND (lease_owner IS NULL OR lease_owner = ? OR lease_expires_at <= ?)`,
		owner, toMillis(now.Add(ttl)), version, profile, owner, toMillis(now),
	)
	if err != nil {
		return fmt.Errorf("claiming lease: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrLeaseHeld
	}
	return tx.Commit()
}

// ReleaseLease clears the lease if owner still holds it.
func (db *DB) ReleaseLease(ctx context.Context, version, profile, owner string) error {
	_, err := db.conn.ExecContext(ctx,
		`UPDATE calc_watermarks SET lease_owner = NULL, lease_expires_at = NULL
		 WHERE version = ? AND profile = ? AND lease_owner = ?`,
		version, profile, owner,
	)
	return err
}

// GetWatermark returns the watermark of (version, profile). A pair that has
// never run returns a zero cursor.
func (db *DB) GetWatermark(ctx context.Context, version, profile string) (Watermark, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT version, profile, last_occurred_at, last_event_id, lease_owner, lease_expires_at, updated_at
		 FROM calc_watermarks WHERE version = ? AND profile = ?`,
		version, profile,
	)
	w, err := scanWatermark(row)
	if err == sql.ErrNoRows {
		return Watermark{Version: version, Profile: profile}, nil
	}
	return w, err
}

// ListWatermarks returns every watermark row ordered by version and profile.
func (db *DB) ListWatermarks(ctx context.Context) ([]Watermark, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT version, profile, last_occurred_at, last_event_id, lease_owner, lease_expires_at, updated_at
		 FROM calc_watermarks ORDER BY version, profile`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Watermark
	for rows.Next() {
		w, err := scanWatermark(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// AdvanceWatermark moves the cursor of (version, profile) forward to cursor.
// The caller must hold the lease; otherwise ErrLeaseLost is returned. A
// cursor that does not sort after the stored one leaves the row unchanged.
func (db *DB) AdvanceWatermark(ctx context.Context, version, profile, owner string, cursor calls.Cursor) error {
	now := db.now()
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current sql.NullString
	var occurred, eventID sql.NullInt64
	err = tx.QueryRowContext(ctx,
		`SELECT lease_owner, last_occurred_at, last_event_id FROM calc_watermarks
		 WHERE version = ? AND profile = ?`,
		version, profile,
	).Scan(&current, &occurred, &eventID)
	if err == sql.ErrNoRows {
		return ErrLeaseLost
	}
	if err != nil {
		return err
	}
	if !current.Valid || current.String != owner {
		return ErrLeaseLost
	}

	if occurred.Valid {
		stored := calls.Cursor{OccurredAt: fromMillis(occurred.Int64), EventID: eventID.Int64}
		if !cursor.After(stored) {
			return tx.Commit()
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE calc_watermarks SET last_occurred_at = ?, last_event_id = ?, updated_at = ?
		 WHERE version = ? AND profile = ? AND lease_owner = ?`,
		toMillis(cursor.OccurredAt), cursor.EventID, toMillis(now), version, profile, owner,
	); err != nil {
		return fmt.Errorf("advancing watermark: %w", err)
	}
	return tx.Commit()
}

func scanWatermark(s scanner) (Watermark, error) {
	var w Watermark
	var occurred, eventID, expires sql.NullInt64
	var owner sql.NullString
	var updated int64
	if err := s.Scan(&w.Version, &w.Profile, &occurred, &eventID, &owner, &expires, &updated); err != nil {
		return Watermark{}, err
	}
	if occurred.Valid {
		w.Cursor = calls.Cursor{OccurredAt: fromMillis(occurred.Int64), EventID: eventID.Int64}
	}
	w.LeaseOwner = owner.String
	if expires.Valid {
		w.LeaseExpiresAt = fromMillis(expires.Int64)
	}
	w.UpdatedAt = fromMillis(updated)
	return w, nil
}
