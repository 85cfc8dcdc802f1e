package catalogue

import (
	"strings"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

func conversionScore(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	cat := ev.NormalizedCategory()
	switch {
	case ev.Outcome == calls.OutcomeRecord || cat == calls.CategoryBookingSuccess:
		return num(c.ConversionBooked)
	case ev.Outcome == calls.OutcomeLeadNoRecord || cat == calls.CategoryLeadNoBooking:
		return num(c.ConversionLead)
	case cat == calls.CategoryNavigation || cat == calls.CategoryInformational:
		return num(c.ConversionInfo)
	}
	return num(c.ConversionDefault)
}

func lostOpportunityScore(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	if !ev.IsTarget {
		return num(c.LostDefault)
	}
	if ev.Outcome != calls.OutcomeRecord {
		return num(c.LostTargetMissed)
	}
	return num(c.LostTargetBooked)
}

func crossSellPotential(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	switch {
	case ev.Outcome == calls.OutcomeRecord:
		return num(c.CrossSellBooked)
	case strings.TrimSpace(ev.RequestedService) != "":
		return num(c.CrossSellRequested)
	}
	return num(c.CrossSellDefault)
}
