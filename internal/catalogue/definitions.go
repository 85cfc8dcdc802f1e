package catalogue

var (
	scoreRange = [2]float64{0, 100}
	probRange  = [2]float64{0, 1}
	flagRange  = [2]float64{0, 1}
)

// Definitions returns the standard catalogue in evaluation order. The slice
// is freshly built on each call.
func Definitions() []Definition {
	return []Definition{
		{Code: "response_speed_score", Group: GroupOperational, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Answered calls score high, unanswered low", Rule: responseSpeedScore},
		{Code: "talk_time_efficiency", Group: GroupOperational, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Talk time mapped through the efficiency threshold", Rule: talkTimeEfficiency},
		{Code: "queue_impact_index", Group: GroupOperational, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Share of the queue window the call occupied", Rule: queueImpactIndex},

		{Code: "conversion_score", Group: GroupConversion, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Booking outcome strength", Rule: conversionScore},
		{Code: "lost_opportunity_score", Group: GroupConversion, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Target calls that ended without a booking", Rule: lostOpportunityScore},
		{Code: "cross_sell_potential", Group: GroupConversion, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Room for an additional service", Rule: crossSellPotential},

		{Code: "checklist_coverage_ratio", Group: GroupQuality, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Checklist items covered, as a percentage", Rule: checklistCoverageRatio},
		{Code: "normalized_call_score", Group: GroupQuality, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Operator quality score on a 0-100 scale", Rule: normalizedCallScore},
		{Code: "script_risk_index", Group: GroupQuality, Shape: ShapeNumeric, Method: MethodRule, Range: scoreRange,
			Description: "Risk that the script was not followed", Rule: scriptRiskIndex},

		{Code: "churn_risk_level", Group: GroupRisk, Shape: ShapeScoredLabel, Method: MethodRule, Range: scoreRange,
			Description: "Likelihood the client leaves, banded low/medium/high", Rule: churnRiskLevel},
		{Code: "complaint_risk_flag", Group: GroupRisk, Shape: ShapeScoredLabel, Method: MethodRule, Range: scoreRange,
			Description: "Complaint risk with a true/false flag", Rule: complaintRiskFlag},
		{Code: "followup_needed_flag", Group: GroupRisk, Shape: ShapeScoredLabel, Method: MethodRule, Range: flagRange,
			Description: "Whether the call needs a callback", Rule: followupNeededFlag},

		{Code: "conversion_prob_forecast", Group: GroupForecast, Shape: ShapeNumeric, Method: MethodRule, Range: probRange,
			Description: "Probability the client books", Rule: conversionProbForecast},
		{Code: "second_call_prob", Group: GroupForecast, Shape: ShapeNumeric, Method: MethodRule, Range: probRange,
			Description: "Probability the client calls again", Rule: secondCallProb},
		{Code: "complaint_prob", Group: GroupForecast, Shape: ShapeNumeric, Method: MethodRule, Range: probRange,
			Description: "Probability the call turns into a complaint", Rule: complaintProb},

		{Code: "lm_version_tag", Group: GroupAux, Shape: ShapeLabel, Method: MethodMeta,
			Description: "Catalogue version that produced the values", Rule: versionTag},
		{Code: "calc_profile", Group: GroupAux, Shape: ShapeLabel, Method: MethodMeta,
			Description: "Calc-profile context resolved from call time", Rule: calcProfile},
		{Code: "risk_evidence", Group: GroupAux, Shape: ShapeStructured, Method: MethodMeta,
			Description: "Rule ids that flagged the call for follow-up, complaint or loss", Rule: riskEvidence},
	}
}
