package domain

import "time"

// EligibilityProfile describes the structural requirements a candidate
// must meet for a vessel type or rank: certificates with minimum
// remaining validity, accumulated experience, behavior score thresholds
// and the fit weights used when blending the sub-scores.
//
// Profiles are versioned explicitly. Once a decision references a
// profile version, that version is immutable; changes are saved as a new
// version.
type EligibilityProfile struct {
	Key         string `json:"key"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version"`

	// Either a vessel type or a rank+department keys the profile.
	VesselTypeKey string `json:"vesselTypeKey,omitempty"`
	RankCode      string `json:"rankCode,omitempty"`
	Department    string `json:"department,omitempty"`

	RequiredItems []RequirementItem       `json:"requiredItems"`
	Experience    []ExperienceRequirement `json:"experience,omitempty"`

	// BehaviorThresholds holds minimum normalized competency scores
	// (0.0-1.0) keyed by competency code, e.g. discipline >= 0.7.
	BehaviorThresholds map[string]float64 `json:"behaviorThresholds,omitempty"`

	// Weights blend cert/experience/behavior/availability fit and must
	// sum to 1.0 within WeightEpsilon.
	Weights FitWeights `json:"weights"`

	// Conditions are optional CEL expressions over candidate facts for
	// requirements the structured items cannot express.
	Conditions []ProfileCondition `json:"conditions,omitempty"`

	// RiskLevel is the baseline operational risk of the position itself
	// (e.g. tanker postings are high-risk by nature).
	RiskLevel RiskLevel `json:"riskLevel,omitempty"`

	Enabled bool `json:"enabled"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RequirementItem is one required certificate or document.
type RequirementItem struct {
	// Type is the certificate type key, e.g. "STCW_BASIC_SAFETY" or
	// "TANKER_ENDORSEMENT".
	Type string `json:"type"`

	// MinRemainingMonths is the minimum whole months of validity left at
	// evaluation time.
	MinRemainingMonths int `json:"minRemainingMonths"`

	// Mandatory items fail the gate softly: the candidate is still
	// scored but flagged ineligible.
	Mandatory bool `json:"mandatory"`

	// HardBlock items short-circuit the whole evaluation; a seafarer
	// without a tanker endorsement cannot serve on a tanker regardless
	// of any score. HardBlock items must carry a BlockReason.
	HardBlock   bool   `json:"hardBlock"`
	BlockReason string `json:"blockReason,omitempty"`
}

// ExperienceRequirement is a minimum accumulated sea time in a category
// (vessel type key or rank code).
type ExperienceRequirement struct {
	Category  string `json:"category"`
	MinMonths int    `json:"minMonths"`

	// Mandatory makes a shortfall a gate failure instead of a
	// proportional experience-fit reduction.
	Mandatory bool `json:"mandatory,omitempty"`
}

// FitWeights blend the four fit dimensions into the gate score.
type FitWeights struct {
	Certificates float64 `json:"certFit"`
	Experience   float64 `json:"experienceFit"`
	Behavior     float64 `json:"behaviorFit"`
	Availability float64 `json:"availabilityFit"`
}

// Sum returns the total of all fit weights.
func (w FitWeights) Sum() float64 {
	return w.Certificates + w.Experience + w.Behavior + w.Availability
}

// ProfileCondition is a CEL expression evaluated against candidate
// facts. The expression must return bool; false fails the condition.
type ProfileCondition struct {
	Name       string `json:"name"`
	Expression string `json:"expression"`
	FailReason string `json:"failReason"`
	HardBlock  bool   `json:"hardBlock,omitempty"`
}
