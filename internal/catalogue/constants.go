package catalogue

import (
	"fmt"
	"sort"
)

// Constants holds every threshold and weight used by the rule set. The
// values are placeholders inherited from the first heuristic release and are
// versioned with the catalogue rather than tuned in place.
type Constants struct {
	// Operational.
	SpeedAnswered             float64
	SpeedMissed               float64
	EfficiencyThresholdSec    float64
	EfficiencyLongDivisor     float64
	EfficiencyShortMultiplier float64
	QueueWindowSec            float64

	// Conversion.
	ConversionBooked   float64
	ConversionLead     float64
	ConversionInfo     float64
	ConversionDefault  float64
	LostTargetMissed   float64
	LostTargetBooked   float64
	LostDefault        float64
	CrossSellBooked    float64
	CrossSellRequested float64
	CrossSellDefault   float64

	// Quality.
	ChecklistFullCount        float64
	ChecklistMissing          float64
	ScoreMissing              float64
	ScoreScaleMax             float64
	ScoreMultiplier           float64
	ScriptRiskPoorMax         float64
	ScriptRiskPoor            float64
	ScriptRiskWeakMax         float64
	ScriptRiskWeak            float64
	ScriptRiskFairMax         float64
	ScriptRiskFair            float64
	ScriptRiskDefault         float64
	ScriptRiskCategoryPenalty float64

	// Risk.
	ChurnComplaint            float64
	ChurnCancellation         float64
	ChurnRefusal              float64
	ChurnRefusalReason        float64
	ChurnRecord               float64
	ChurnDefault              float64
	ChurnHighMin              float64
	ChurnMediumMin            float64
	ComplaintRiskComplaint    float64
	ComplaintRiskLowScore     float64
	ComplaintRiskLowScoreMax  float64
	ComplaintRiskCancellation float64
	ComplaintRiskDefault      float64
	ComplaintFlagMin          float64

	// Forecast.
	ConvProbRecord            float64
	ConvProbLead              float64
	ConvProbTarget            float64
	ConvProbDefault           float64
	SecondCallInfo            float64
	SecondCallLead            float64
	SecondCallRecord          float64
	SecondCallDefault         float64
	ComplaintProbComplaint    float64
	ComplaintProbLowScore     float64
	ComplaintProbCancellation float64
	ComplaintProbDefault      float64

	// Evidence.
	EvidenceLowScoreMax  float64
	EvidenceMissingScore float64
}

// DefaultConstants returns the constants of the built-in rules_v1 catalogue.
func DefaultConstants() Constants {
	return Constants{
		SpeedAnswered:             85,
		SpeedMissed:               20,
		EfficiencyThresholdSec:    30,
		EfficiencyLongDivisor:     3,
		EfficiencyShortMultiplier: 2,
		QueueWindowSec:            300,

		ConversionBooked:   100,
		ConversionLead:     50,
		ConversionInfo:     20,
		ConversionDefault:  10,
		LostTargetMissed:   80,
		LostTargetBooked:   0,
		LostDefault:        20,
		CrossSellBooked:    70,
		CrossSellRequested: 40,
		CrossSellDefault:   10,

		ChecklistFullCount:        10,
		ChecklistMissing:          50,
		ScoreMissing:              0,
		ScoreScaleMax:             10,
		ScoreMultiplier:           10,
		ScriptRiskPoorMax:         3,
		ScriptRiskPoor:            80,
		ScriptRiskWeakMax:         5,
		ScriptRiskWeak:            50,
		ScriptRiskFairMax:         7,
		ScriptRiskFair:            30,
		ScriptRiskDefault:         10,
		ScriptRiskCategoryPenalty: 20,

		ChurnComplaint:            90,
		ChurnCancellation:         70,
		ChurnRefusal:              60,
		ChurnRefusalReason:        50,
		ChurnRecord:               10,
		ChurnDefault:              30,
		ChurnHighMin:              70,
		ChurnMediumMin:            40,
		ComplaintRiskComplaint:    100,
		ComplaintRiskLowScore:     60,
		ComplaintRiskLowScoreMax:  3,
		ComplaintRiskCancellation: 40,
		ComplaintRiskDefault:      10,
		ComplaintFlagMin:          50,

		ConvProbRecord:            1.0,
		ConvProbLead:              0.35,
		ConvProbTarget:            0.20,
		ConvProbDefault:           0.05,
		SecondCallInfo:            0.60,
		SecondCallLead:            0.45,
		SecondCallRecord:          0.15,
		SecondCallDefault:         0.25,
		ComplaintProbComplaint:    1.0,
		ComplaintProbLowScore:     0.40,
		ComplaintProbCancellation: 0.25,
		ComplaintProbDefault:      0.05,

		EvidenceLowScoreMax:  4,
		EvidenceMissingScore: 10,
	}
}

// fields maps the config key of every constant to its storage.
func (c *Constants) fields() map[string]*float64 {
	return map[string]*float64{
		"speed_answered":               &c.SpeedAnswered,
		"speed_missed":                 &c.SpeedMissed,
		"efficiency_threshold_sec":     &c.EfficiencyThresholdSec,
		"efficiency_long_divisor":      &c.EfficiencyLongDivisor,
		"efficiency_short_multiplier":  &c.EfficiencyShortMultiplier,
		"queue_window_sec":             &c.QueueWindowSec,
		"conversion_booked":            &c.ConversionBooked,
		"conversion_lead":              &c.ConversionLead,
		"conversion_info":              &c.ConversionInfo,
		"conversion_default":           &c.ConversionDefault,
		"lost_target_missed":           &c.LostTargetMissed,
		"lost_target_booked":           &c.LostTargetBooked,
		"lost_default":                 &c.LostDefault,
		"cross_sell_booked":            &c.CrossSellBooked,
		"cross_sell_requested":         &c.CrossSellRequested,
		"cross_sell_default":           &c.CrossSellDefault,
		"checklist_full_count":         &c.ChecklistFullCount,
		"checklist_missing":            &c.ChecklistMissing,
		"score_missing":                &c.ScoreMissing,
		"score_scale_max":              &c.ScoreScaleMax,
		"score_multiplier":             &c.ScoreMultiplier,
		"script_risk_poor_max":         &c.ScriptRiskPoorMax,
		"script_risk_poor":             &c.ScriptRiskPoor,
		"script_risk_weak_max":         &c.ScriptRiskWeakMax,
		"script_risk_weak":             &c.ScriptRiskWeak,
		"script_risk_fair_max":         &c.ScriptRiskFairMax,
		"script_risk_fair":             &c.ScriptRiskFair,
		"script_risk_default":          &c.ScriptRiskDefault,
		"script_risk_category_penalty": &c.ScriptRiskCategoryPenalty,
		"churn_complaint":              &c.ChurnComplaint,
		"churn_cancellation":           &c.ChurnCancellation,
		"churn_refusal":                &c.ChurnRefusal,
		"churn_refusal_reason":         &c.ChurnRefusalReason,
		"churn_record":                 &c.ChurnRecord,
		"churn_default":                &c.ChurnDefault,
		"churn_high_min":               &c.ChurnHighMin,
		"churn_medium_min":             &c.ChurnMediumMin,
		"complaint_risk_complaint":     &c.ComplaintRiskComplaint,
		"complaint_risk_low_score":     &c.ComplaintRiskLowScore,
		"complaint_risk_low_score_max": &c.ComplaintRiskLowScoreMax,
		"complaint_risk_cancellation":  &c.ComplaintRiskCancellation,
		"complaint_risk_default":       &c.ComplaintRiskDefault,
		"complaint_flag_min":           &c.ComplaintFlagMin,
		"conv_prob_record":             &c.ConvProbRecord,
		"conv_prob_lead":               &c.ConvProbLead,
		"conv_prob_target":             &c.ConvProbTarget,
		"conv_prob_default":            &c.ConvProbDefault,
		"second_call_info":             &c.SecondCallInfo,
		"second_call_lead":             &c.SecondCallLead,
		"second_call_record":           &c.SecondCallRecord,
		"second_call_default":          &c.SecondCallDefault,
		"complaint_prob_complaint":     &c.ComplaintProbComplaint,
		"complaint_prob_low_score":     &c.ComplaintProbLowScore,
		"complaint_prob_cancellation":  &c.ComplaintProbCancellation,
		"complaint_prob_default":       &c.ComplaintProbDefault,
		"evidence_low_score_max":       &c.EvidenceLowScoreMax,
		"evidence_missing_score":       &c.EvidenceMissingScore,
	}
}

// With returns a copy of c with the named constants replaced. Keys use the
// snake_case names accepted in the config file.
func (c Constants) With(overrides map[string]float64) (Constants, error) {
	out := c
	fields := out.fields()
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		ptr, ok := fields[k]
		if !ok {
			return Constants{}, fmt.Errorf("unknown catalogue constant %q", k)
		}
		*ptr = overrides[k]
	}
	return out, nil
}

// ConstantNames returns the config keys of all constants, sorted.
func ConstantNames() []string {
	var c Constants
	names := make([]string, 0, 64)
	for k := range c.fields() {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
