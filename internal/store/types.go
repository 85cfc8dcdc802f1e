// Package store provides SQLite database access for call events, metric
// values, calculation watermarks and cached dashboard aggregates.
package store

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

var (
	// ErrLeaseHeld is returned when another live owner holds the watermark lease.
	ErrLeaseHeld = errors.New("watermark lease held by another run")
	// ErrLeaseLost is returned when a run no longer owns the lease it acquired.
	ErrLeaseLost = errors.New("watermark lease lost")
)

// Watermark is the durable cursor of one (version, profile) pair.
type Watermark struct {
	Version        string       `json:"version"`
	Profile        string       `json:"profile"`
	Cursor         calls.Cursor `json:"cursor"`
	LeaseOwner     string       `json:"lease_owner,omitempty"`
	LeaseExpiresAt time.Time    `json:"lease_expires_at,omitempty"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Statistics summarizes the numeric values of one metric code.
type Statistics struct {
	Code    string  `json:"metric_code"`
	Version string  `json:"version"`
	Count   int     `json:"count"`
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Stddev  float64 `json:"stddev"`
}

// LabelCount is one bucket of a label distribution.
type LabelCount struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// Lead is a target call that ended without a booking but is likely to
// convert on a callback.
type Lead struct {
	Event       calls.Event `json:"event"`
	Probability float64     `json:"conversion_prob"`
}

// AggregateRow is one cached dashboard aggregate. Fields holds the rollup
// as JSON; its structure belongs to the dashboard package.
type AggregateRow struct {
	Subject     string          `json:"subject"`
	PeriodType  string          `json:"period_type"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Version     string          `json:"version"`
	Fields      json.RawMessage `json:"fields"`
	CachedAt    time.Time       `json:"cached_at"`
}

// AggregateFilter selects cached aggregates for invalidation. Empty fields
// match everything.
type AggregateFilter struct {
	Subject    string
	PeriodType string
}

// Run is the history record of one processor run.
type Run struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Version     string    `json:"version"`
	Profile     string    `json:"profile"`
	WindowStart time.Time `json:"window_start,omitempty"`
	WindowEnd   time.Time `json:"window_end,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Processed   int       `json:"processed"`
	Status      string    `json:"status"`
	Error       string    `json:"error,omitempty"`
}
