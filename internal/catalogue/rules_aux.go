package catalogue

import (
	"encoding/json"
	"strings"

	"github.com/blackwell-systems/callwatch/internal/calls"
)

func versionTag(_ calls.Event, rc RuleContext) Value {
	return label(rc.Version)
}

func calcProfile(_ calls.Event, rc RuleContext) Value {
	return label(string(rc.Context))
}

// Evidence rule ids.
const (
	EvidenceRefusalCallback       = "refusal_callback"
	EvidenceTargetNoRecord        = "target_no_record"
	EvidenceLeadCategoryNoBooking = "lead_category_no_booking"
	EvidenceTechFail              = "tech_fail"
	EvidenceCategoryComplaint     = "category_complaint"
	EvidenceRefusalGroupRisk      = "refusal_group_risk"
	EvidenceLowScore              = "low_score"
	EvidenceNoRefusalReason       = "no_refusal_reason"
)

// Refusal codes that mean the client asked to be called back.
var callbackCodes = map[string]bool{
	"PATIENT_WILL_CLARIFY": true,
	"CALL_BACK_LATER":      true,
	"THINKING":             true,
	"NO_TIME":              true,
	"NEEDS_DECISION":       true,
}

// Refusal groups that point at a service problem.
var riskGroups = map[string]bool{
	"service": true,
	"time":    true,
	"doctor":  true,
	"quality": true,
}

// Refusal codes inside risk groups that are not the clinic's fault.
var excludedRiskCodes = map[string]bool{
	"SERVICE_NOT_PROVIDED": true,
	"AGE_RESTRICTION":      true,
	"DOCUMENTS_REQUIRED":   true,
}

// Evidence lists the rule ids that explain why a call landed in the
// follow-up, complaint or lost-opportunity lists.
type Evidence struct {
	Followup   []string `json:"followup"`
	Complaints []string `json:"complaints"`
	Lost       []string `json:"lost"`
}

// CollectEvidence evaluates the evidence rules for ev.
func CollectEvidence(ev calls.Event, c Constants) Evidence {
	e := Evidence{Followup: []string{}, Complaints: []string{}, Lost: []string{}}
	cat := ev.NormalizedCategory()
	code := strings.ToUpper(strings.TrimSpace(ev.RefusalCode))
	booked := ev.Outcome == calls.OutcomeRecord

	if callbackCodes[code] {
		e.Followup = append(e.Followup, EvidenceRefusalCallback)
	}
	if ev.IsTarget && !booked {
		e.Followup = append(e.Followup, EvidenceTargetNoRecord)
	}
	if cat == calls.CategoryLeadNoBooking && !booked {
		e.Followup = append(e.Followup, EvidenceLeadCategoryNoBooking)
	}
	if cat == calls.CategoryTechnicalFailure {
		e.Followup = append(e.Followup, EvidenceTechFail)
	}

	if cat == calls.CategoryComplaint {
		e.Complaints = append(e.Complaints, EvidenceCategoryComplaint)
	}
	if riskGroups[strings.ToLower(strings.TrimSpace(ev.RefusalGroup))] && !excludedRiskCodes[code] {
		e.Complaints = append(e.Complaints, EvidenceRefusalGroupRisk)
	}

	lost := (ev.IsTarget || cat == calls.CategoryLeadNoBooking) && !booked
	if lost {
		e.Lost = append(e.Lost, EvidenceTargetNoRecord)
		score := c.EvidenceMissingScore
		if ev.QualityScore != nil {
			score = *ev.QualityScore
		}
		if score <= c.EvidenceLowScoreMax {
			e.Lost = append(e.Lost, EvidenceLowScore)
		}
		if code == "" || code == "OTHER_REASON" {
			e.Lost = append(e.Lost, EvidenceNoRefusalReason)
		}
	}
	return e
}

func riskEvidence(ev calls.Event, rc RuleContext) Value {
	// Marshalling a struct of string slices cannot fail.
	b, _ := json.Marshal(CollectEvidence(ev, rc.Constants))
	return Value{Payload: b}
}
