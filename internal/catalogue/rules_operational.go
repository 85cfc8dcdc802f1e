package catalogue

import "github.com/blackwell-systems/callwatch/internal/calls"

func responseSpeedScore(ev calls.Event, rc RuleContext) Value {
	if ev.DurationSec > 0 {
		return num(rc.Constants.SpeedAnswered)
	}
	return num(rc.Constants.SpeedMissed)
}

// talkTimeEfficiency is exclusive at the threshold: a call of exactly
// EfficiencyThresholdSec seconds uses the short-call branch.
func talkTimeEfficiency(ev calls.Event, rc RuleContext) Value {
	c := rc.Constants
	d := ev.DurationSec
	if d <= 0 {
		return num(0)
	}
	if d > c.EfficiencyThresholdSec {
		return num(clamp(d/c.EfficiencyLongDivisor, 0, 100))
	}
	return num(clamp(d*c.EfficiencyShortMultiplier, 0, 100))
}

func queueImpactIndex(ev calls.Event, rc RuleContext) Value {
	if rc.Constants.QueueWindowSec <= 0 {
		return num(0)
	}
	return num(clamp(ev.DurationSec/rc.Constants.QueueWindowSec*100, 0, 100))
}
