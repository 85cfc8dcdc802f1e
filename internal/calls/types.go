// Package calls defines the call event records consumed by callwatch and
// reads them from the JSON-lines feed produced by the ingestion pipeline.
package calls

import (
	"strings"
	"time"
)

// Outcome values recognized by the scoring rules. Any other value, including
// the empty string, falls through to a rule's default arm.
const (
	OutcomeRecord       = "record"
	OutcomeLeadNoRecord = "lead_no_record"
	OutcomeInfoOnly     = "info_only"
	OutcomeCancel       = "cancel"
	OutcomeRefusal      = "refusal"
	OutcomeNoInterest   = "no_interest"
)

// Category values recognized by the scoring rules and dashboard rollups.
// Categories are compared after normalization (see NormalizeCategory).
const (
	CategoryComplaint        = "complaint"
	CategoryCancellation     = "appointment_cancellation"
	CategoryReschedule       = "appointment_reschedule"
	CategoryBookingSuccess   = "booking_success"
	CategoryLeadNoBooking    = "lead_no_booking"
	CategoryNavigation       = "navigation"
	CategoryInformational    = "informational"
	CategorySpam             = "spam"
	CategoryReminder         = "reminder"
	CategoryReservation      = "reservation"
	CategoryTechnicalFailure = "technical_failure"
)

// Direction values. An empty direction is treated as inbound.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Event is one finalized call record. Events are immutable once ingested;
// callwatch only ever reads them.
type Event struct {
	ID               int64     `json:"id"`
	OccurredAt       time.Time `json:"occurred_at"`
	Subject          string    `json:"subject"`
	Direction        string    `json:"direction,omitempty"`
	Category         string    `json:"category,omitempty"`
	Outcome          string    `json:"outcome,omitempty"`
	IsTarget         bool      `json:"is_target"`
	DurationSec      float64   `json:"duration_sec"`
	QualityScore     *float64  `json:"quality_score,omitempty"`
	ChecklistCount   *int      `json:"checklist_count,omitempty"`
	RefusalReason    string    `json:"refusal_reason,omitempty"`
	RefusalCode      string    `json:"refusal_code,omitempty"`
	RefusalGroup     string    `json:"refusal_group,omitempty"`
	RequestedService string    `json:"requested_service,omitempty"`
}

// NormalizeCategory lower-cases and trims a free-text category, replacing
// inner spaces and dashes with underscores.
func NormalizeCategory(c string) string {
	c = strings.ToLower(strings.TrimSpace(c))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(c)
}

// NormalizedCategory returns the event's category in normalized form.
func (e Event) NormalizedCategory() string {
	return NormalizeCategory(e.Category)
}

// Answered reports whether the call was connected (non-zero talk time).
func (e Event) Answered() bool {
	return e.DurationSec > 0
}

// Missed reports whether the call was an inbound call nobody picked up.
func (e Event) Missed() bool {
	return e.Direction != DirectionOutbound && e.DurationSec <= 0
}

// Booked reports whether the call ended with a booking, either via the
// outcome or via a successful-booking category.
func (e Event) Booked() bool {
	return e.Outcome == OutcomeRecord || e.NormalizedCategory() == CategoryBookingSuccess
}

// Cursor is a position in the (OccurredAt, ID) ordering of events.
type Cursor struct {
	OccurredAt time.Time `json:"occurred_at"`
	EventID    int64     `json:"event_id"`
}

// CursorOf returns the ordering position of e.
func CursorOf(e Event) Cursor {
	return Cursor{OccurredAt: e.OccurredAt, EventID: e.ID}
}

// After reports whether c sorts strictly after other.
func (c Cursor) After(other Cursor) bool {
	if c.OccurredAt.Equal(other.OccurredAt) {
		return c.EventID > other.EventID
	}
	return c.OccurredAt.After(other.OccurredAt)
}

// IsZero reports whether c is the start-of-history cursor.
func (c Cursor) IsZero() bool {
	return c.OccurredAt.IsZero() && c.EventID == 0
}
