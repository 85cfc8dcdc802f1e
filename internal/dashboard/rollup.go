package dashboard

import (
	"math"

	"github.com/blackwell-systems/callwatch/internal/calls"
	"github.com/blackwell-systems/callwatch/internal/catalogue"
)

// Metric codes the rollup reads.
var rollupCodes = []string{
	"conversion_score",
	"conversion_prob_forecast",
	"churn_risk_level",
	"followup_needed_flag",
}

// Fields is the closed set of figures a dashboard carries.
type Fields struct {
	TotalCalls        int     `json:"total_calls"`
	AcceptedCalls     int     `json:"accepted_calls"`
	MissedCalls       int     `json:"missed_calls"`
	MissedRate        float64 `json:"missed_rate"`
	RecordsCount      int     `json:"records_count"`
	LeadsNoRecord     int     `json:"leads_no_record"`
	ConversionRate    float64 `json:"conversion_rate"`
	AvgScoreAll       float64 `json:"avg_score_all"`
	AvgScoreLeads     float64 `json:"avg_score_leads"`
	AvgScoreCancel    float64 `json:"avg_score_cancel"`
	CancelCalls       int     `json:"cancel_calls"`
	RescheduleCalls   int     `json:"reschedule_calls"`
	CancelShare       float64 `json:"cancel_share"`
	TotalTalkTime     float64 `json:"total_talk_time"`
	AvgTalkAll        float64 `json:"avg_talk_all"`
	AvgTalkRecord     float64 `json:"avg_talk_record"`
	AvgTalkNavigation float64 `json:"avg_talk_navigation"`
	AvgTalkSpam       float64 `json:"avg_talk_spam"`
	ComplaintCalls    int     `json:"complaint_calls"`
	AvgScoreComplaint float64 `json:"avg_score_complaint"`

	ScoredCalls        int     `json:"scored_calls"`
	FollowupNeeded     int     `json:"followup_needed"`
	ChurnLow           int     `json:"churn_low"`
	ChurnMedium        int     `json:"churn_medium"`
	ChurnHigh          int     `json:"churn_high"`
	AvgConversionScore float64 `json:"avg_conversion_score"`
	ExpectedRecords    float64 `json:"expected_records"`
	Uplift             float64 `json:"uplift"`
}

// Category talk averages ignore calls of three seconds or less.
const minCategoryTalkSec = 3

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v float64) {
	m.sum += v
	m.n++
}

func (m mean) value() float64 {
	if m.n == 0 {
		return 0
	}
	return round2(m.sum / float64(m.n))
}

// Rollup computes the dashboard fields for events. values holds the stored
// metric values of the configured version keyed by event id; events without
// values count toward the call figures only.
func Rollup(events []calls.Event, values map[int64]map[string]catalogue.MetricValue) Fields {
	var f Fields
	var (
		scoreAll, scoreLeads, scoreCancel, scoreComplaint mean
		talkRecord, talkNavigation, talkSpam              mean
		conversion                                        mean
		cancellations                                     int
		scoredRecords                                     int
	)

	f.TotalCalls = len(events)
	for _, ev := range events {
		if ev.Missed() {
			f.MissedCalls++
		}
		if !ev.Answered() {
			continue
		}
		f.AcceptedCalls++
		f.TotalTalkTime += ev.DurationSec

		cat := ev.NormalizedCategory()
		booked := ev.Booked()
		if booked {
			f.RecordsCount++
		}
		lead := !booked && (ev.Outcome == calls.OutcomeLeadNoRecord || cat == calls.CategoryLeadNoBooking)
		if lead {
			f.LeadsNoRecord++
		}
		cancel := ev.Outcome == calls.OutcomeCancel || ev.RefusalReason != ""
		if cancel {
			f.CancelCalls++
		}
		switch cat {
		case calls.CategoryCancellation:
			cancellations++
		case calls.CategoryReschedule:
			f.RescheduleCalls++
		case calls.CategoryComplaint:
			f.ComplaintCalls++
		}

		if ev.QualityScore != nil && !math.IsNaN(*ev.QualityScore) {
			s := *ev.QualityScore
			scoreAll.add(s)
			if lead {
				scoreLeads.add(s)
			}
			if cancel {
				scoreCancel.add(s)
			}
			if cat == calls.CategoryComplaint {
				scoreComplaint.add(s)
			}
		}

		if ev.DurationSec > minCategoryTalkSec {
			switch {
			case booked:
				talkRecord.add(ev.DurationSec)
			case cat == calls.CategoryNavigation:
				talkNavigation.add(ev.DurationSec)
			case cat == calls.CategorySpam:
				talkSpam.add(ev.DurationSec)
			}
		}
	}

	for _, ev := range events {
		vals, ok := values[ev.ID]
		if !ok {
			continue
		}
		f.ScoredCalls++
		if ev.Booked() {
			scoredRecords++
		}
		if v, ok := vals["conversion_score"]; ok && v.Numeric != nil {
			conversion.add(*v.Numeric)
		}
		if v, ok := vals["conversion_prob_forecast"]; ok && v.Numeric != nil {
			f.ExpectedRecords += *v.Numeric
		}
		if v, ok := vals["followup_needed_flag"]; ok && v.Numeric != nil && *v.Numeric >= 1 {
			f.FollowupNeeded++
		}
		if v, ok := vals["churn_risk_level"]; ok && v.Label != nil {
			switch *v.Label {
			case catalogue.ChurnLow:
				f.ChurnLow++
			case catalogue.ChurnMedium:
				f.ChurnMedium++
			case catalogue.ChurnHigh:
				f.ChurnHigh++
			}
		}
	}

	f.MissedRate = percent(f.MissedCalls, f.TotalCalls)
	f.ConversionRate = percent(f.RecordsCount, f.AcceptedCalls)
	f.CancelShare = percent(f.CancelCalls, cancellations+f.RescheduleCalls)
	if f.AcceptedCalls > 0 {
		f.AvgTalkAll = round2(f.TotalTalkTime / float64(f.AcceptedCalls))
	}
	f.TotalTalkTime = round2(f.TotalTalkTime)
	f.AvgScoreAll = scoreAll.value()
	f.AvgScoreLeads = scoreLeads.value()
	f.AvgScoreCancel = scoreCancel.value()
	f.AvgScoreComplaint = scoreComplaint.value()
	f.AvgTalkRecord = talkRecord.value()
	f.AvgTalkNavigation = talkNavigation.value()
	f.AvgTalkSpam = talkSpam.value()
	f.AvgConversionScore = conversion.value()
	f.ExpectedRecords = round2(f.ExpectedRecords)
	f.Uplift = round2(float64(scoredRecords) - f.ExpectedRecords)
	return f
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return round2(float64(part) / float64(whole) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
