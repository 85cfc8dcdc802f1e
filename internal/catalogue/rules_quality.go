package catalogue

import (
	"math"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

func checklistCoverageRatio(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	if ev.ChecklistCount == nil || c.ChecklistFullCount <= 0 {
		return num(c.ChecklistMissing)
	}
	return num(clamp(float64(*ev.ChecklistCount)/c.ChecklistFullCount*100, 0, 100))
}

// rawScore returns the operator sub-score, or ScoreMissing when absent or NaN.
func rawScore(ev calls.Event, c Constants) (float64, bool) {
	if ev.QualityScore == nil || math.IsNaN(*ev.QualityScore) {
		return c.ScoreMissing, false
	}
	return *ev.QualityScore, true
}

func normalizedCallScore(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	s, ok := rawScore(ev, c)
	if !ok {
		return num(clamp(s, 0, 100))
	}
	if s <= c.ScoreScaleMax {
		s *= c.ScoreMultiplier
	}
	return num(clamp(s, 0, 100))
}

func scriptRiskIndex(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	s, _ := rawScore(ev, c)
	var risk float64
	switch {
	case s <= c.ScriptRiskPoorMax:
		risk = c.ScriptRiskPoor
	case s <= c.ScriptRiskWeakMax:
		risk = c.ScriptRiskWeak
	case s <= c.ScriptRiskFairMax:
		risk = c.ScriptRiskFair
	default:
		risk = c.ScriptRiskDefault
	}
	switch ev.NormalizedCategory() {
	case calls.CategoryComplaint, calls.CategoryCancellation:
		risk += c.ScriptRiskCategoryPenalty
	}
	return num(clamp(risk, 0, 100))
}
