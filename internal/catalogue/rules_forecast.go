package catalogue

import "github.com/blackwell-systems/callwatch/internal/calls"

func conversionProbForecast(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	switch {
	case ev.Outcome == calls.OutcomeRecord:
		return num(clamp(c.ConvProbRecord, 0, 1))
	case ev.Outcome == calls.OutcomeLeadNoRecord:
		return num(clamp(c.ConvProbLead, 0, 1))
	case ev.IsTarget:
		return num(clamp(c.ConvProbTarget, 0, 1))
	}
	return num(clamp(c.ConvProbDefault, 0, 1))
}

func secondCallProb(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	cat := ev.NormalizedCategory()
	switch {
	case cat == calls.CategoryNavigation || cat == calls.CategoryInformational:
		return num(clamp(c.SecondCallInfo, 0, 1))
	case ev.Outcome == calls.OutcomeLeadNoRecord:
		return num(clamp(c.SecondCallLead, 0, 1))
	case ev.Outcome == calls.OutcomeRecord:
		return num(clamp(c.SecondCallRecord, 0, 1))
	}
	return num(clamp(c.SecondCallDefault, 0, 1))
}

func complaintProb(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	switch {
	case ev.NormalizedCategory() == calls.CategoryComplaint:
		return num(clamp(c.ComplaintProbComplaint, 0, 1))
	case lowScore(ev, c):
		return num(clamp(c.ComplaintProbLowScore, 0, 1))
	case isCancellation(ev):
		return num(clamp(c.ComplaintProbCancellation, 0, 1))
	}
	return num(clamp(c.ComplaintProbDefault, 0, 1))
}
