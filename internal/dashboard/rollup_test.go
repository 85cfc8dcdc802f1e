package dashboard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
)

func score(v float64) *float64 { return &v }

func numeric(code string, v float64) catalogue.MetricValue {
	return catalogue.MetricValue{Code: code, Numeric: &v}
}

func churn(label string) catalogue.MetricValue {
	return catalogue.MetricValue{Code: "churn_risk_level", Label: &label}
}

func TestRollup(t *testing.T) {
	at := time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC)
	events := []calls.Event{
		{ID: 1, OccurredAt: at, Outcome: calls.OutcomeRecord, DurationSec: 120, QualityScore: score(9)},
		{ID: 2, OccurredAt: at, Outcome: calls.OutcomeLeadNoRecord, IsTarget: true, DurationSec: 60, QualityScore: score(5)},
		{ID: 3, OccurredAt: at, DurationSec: 0},
		{ID: 4, OccurredAt: at, Direction: calls.DirectionOutbound, DurationSec: 0},
		{ID: 5, OccurredAt: at, Category: "Appointment Cancellation", Outcome: calls.OutcomeCancel, DurationSec: 40, QualityScore: score(3)},
		{ID: 6, OccurredAt: at, Category: "appointment_reschedule", DurationSec: 20},
		{ID: 7, OccurredAt: at, Category: "complaint", DurationSec: 90, QualityScore: score(2), RefusalReason: "rude"},
		{ID: 8, OccurredAt: at, Category: "navigation", DurationSec: 2},
		{ID: 9, OccurredAt: at, Category: "navigation", DurationSec: 30},
		{ID: 10, OccurredAt: at, Category: "spam", DurationSec: 8},
	}
	values := map[int64]map[string]catalogue.MetricValue{
		1: {
			"conversion_score":         numeric("conversion_score", 100),
			"conversion_prob_forecast": numeric("conversion_prob_forecast", 1),
			"churn_risk_level":         churn(catalogue.ChurnLow),
			"followup_needed_flag":     numeric("followup_needed_flag", 0),
		},
		2: {
			"conversion_score":         numeric("conversion_score", 50),
			"conversion_prob_forecast": numeric("conversion_prob_forecast", 0.35),
			"churn_risk_level":         churn(catalogue.ChurnLow),
			"followup_needed_flag":     numeric("followup_needed_flag", 1),
		},
		7: {
			"conversion_score":         numeric("conversion_score", 10),
			"conversion_prob_forecast": numeric("conversion_prob_forecast", 0.05),
			"churn_risk_level":         churn(catalogue.ChurnHigh),
			"followup_needed_flag":     numeric("followup_needed_flag", 1),
		},
	}

	f := Rollup(events, values)
	assert.Equal(t, 10, f.TotalCalls)
	assert.Equal(t, 8, f.AcceptedCalls)
	assert.Equal(t, 1, f.MissedCalls, "outbound calls are never missed")
	assert.Equal(t, 10.0, f.MissedRate)
	assert.Equal(t, 1, f.RecordsCount)
	assert.Equal(t, 1, f.LeadsNoRecord)
	assert.Equal(t, 12.5, f.ConversionRate)
	assert.Equal(t, 4.75, f.AvgScoreAll)
	assert.Equal(t, 5.0, f.AvgScoreLeads)
	assert.Equal(t, 2, f.CancelCalls)
	assert.Equal(t, 2.5, f.AvgScoreCancel)
	assert.Equal(t, 1, f.RescheduleCalls)
	assert.Equal(t, 100.0, f.CancelShare)
	assert.Equal(t, 370.0, f.TotalTalkTime)
	assert.Equal(t, 46.25, f.AvgTalkAll)
	assert.Equal(t, 120.0, f.AvgTalkRecord)
	assert.Equal(t, 30.0, f.AvgTalkNavigation, "talk of three seconds or less is ignored")
	assert.Equal(t, 8.0, f.AvgTalkSpam)
	assert.Equal(t, 1, f.ComplaintCalls)
	assert.Equal(t, 2.0, f.AvgScoreComplaint)

	assert.Equal(t, 3, f.ScoredCalls)
	assert.Equal(t, 2, f.FollowupNeeded)
	assert.Equal(t, 2, f.ChurnLow)
	assert.Equal(t, 0, f.ChurnMedium)
	assert.Equal(t, 1, f.ChurnHigh)
	assert.Equal(t, 53.33, f.AvgConversionScore)
	assert.Equal(t, 1.4, f.ExpectedRecords)
	assert.Equal(t, -0.4, f.Uplift)
}

func TestRollupEmpty(t *testing.T) {
	assert.Equal(t, Fields{}, Rollup(nil, nil))
}
