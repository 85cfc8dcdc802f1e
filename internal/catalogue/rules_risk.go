package catalogue

import (
	"strings"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

// Churn bands.
const (
	ChurnLow    = "low"
	ChurnMedium = "medium"
	ChurnHigh   = "high"
)

// ChurnBand labels a churn score. Both lower bounds are inclusive.
func ChurnBand(score float64, c Constants) string {
	switch {
	case score >= c.ChurnHighMin:
		return ChurnHigh
	case score >= c.ChurnMediumMin:
		return ChurnMedium
	}
	return ChurnLow
}

func isCancellation(ev calls.Event) bool {
	return ev.NormalizedCategory() == calls.CategoryCancellation || ev.Outcome == calls.OutcomeCancel
}

func churnRiskLevel(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	var score float64
	switch {
	case ev.NormalizedCategory() == calls.CategoryComplaint:
		score = c.ChurnComplaint
	case isCancellation(ev):
		score = c.ChurnCancellation
	case ev.Outcome == calls.OutcomeRefusal || ev.Outcome == calls.OutcomeNoInterest:
		score = c.ChurnRefusal
	case strings.TrimSpace(ev.RefusalReason) != "":
		score = c.ChurnRefusalReason
	case ev.Outcome == calls.OutcomeRecord:
		score = c.ChurnRecord
	default:
		score = c.ChurnDefault
	}
	score = clamp(score, 0, 100)
	return scored(score, ChurnBand(score, c))
}

func complaintRiskFlag(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	var score float64
	switch {
	case ev.NormalizedCategory() == calls.CategoryComplaint:
		score = c.ComplaintRiskComplaint
	case lowScore(ev, c):
		score = c.ComplaintRiskLowScore
	case isCancellation(ev):
		score = c.ComplaintRiskCancellation
	default:
		score = c.ComplaintRiskDefault
	}
	score = clamp(score, 0, 100)
	return scored(score, boolLabel(score >= c.ComplaintFlagMin))
}

// lowScore reports a recorded quality score under the low-score threshold.
// A zero score means the call was never rated.
func lowScore(ev calls.Event, c Constants) bool {
	return ev.QualityScore != nil && *ev.QualityScore > 0 && *ev.QualityScore < c.ComplaintRiskLowScoreMax
}

// NeedsFollowup reports whether a call should be called back.
func NeedsFollowup(ev calls.Event) bool {
	if ev.Outcome == calls.OutcomeLeadNoRecord {
		return true
	}
	switch ev.NormalizedCategory() {
	case calls.CategoryComplaint, calls.CategoryLeadNoBooking:
		return true
	}
	return false
}

func followupNeededFlag(ev calls.Event, _ RuleContext) Value {
	if NeedsFollowup(ev) {
		return scored(1, "true")
	}
	return scored(0, "false")
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
