package domain

import "time"

// RiskLevel classifies overall risk for a decision.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Rank orders risk levels for floor comparisons.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	case RiskCritical:
		return 4
	default:
		return 0
	}
}

// Max returns the more severe of two risk levels.
func (r RiskLevel) Max(other RiskLevel) RiskLevel {
	if other.Rank() > r.Rank() {
		return other
	}
	return r
}

// Recommendation is the categorical outcome of an evaluation.
type Recommendation string

const (
	RecommendFit             Recommendation = "FIT"
	RecommendFitWithTraining Recommendation = "FIT_WITH_TRAINING"
	RecommendNotRecommended  Recommendation = "NOT_RECOMMENDED"
)

// DecisionResult is the immutable output of one candidate evaluation.
// Re-evaluating produces a new DecisionResult; existing ones are never
// mutated, preserving audit history.
type DecisionResult struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	CandidateID string `json:"candidateId"`

	// Versions of the content the candidate was evaluated against.
	TemplateID      string `json:"templateId,omitempty"`
	TemplateVersion string `json:"templateVersion,omitempty"`
	ProfileKey      string `json:"profileKey,omitempty"`
	ProfileVersion  string `json:"profileVersion,omitempty"`

	// OverallScore is the weighted competency score normalized to 0-100.
	// Reported even when hard-blocked, for transparency.
	OverallScore float64 `json:"overallScore"`

	// CompetencyScores are on the template's native rubric scale.
	CompetencyScores map[string]float64 `json:"competencyScores"`

	// QuestionScores record which rubric level matched per question.
	QuestionScores []QuestionScore `json:"questionScores,omitempty"`

	RiskLevel RiskLevel        `json:"riskLevel"`
	RedFlags  []RedFlagFinding `json:"redFlags,omitempty"`

	// GateItems record every requirement check, passed or failed.
	GateItems []GateItemResult `json:"gateItems,omitempty"`

	// GatePassed is false when any mandatory requirement failed, even if
	// the candidate was still scored.
	GatePassed bool `json:"gatePassed"`

	// FitScore blends cert/experience/behavior/availability fit using
	// the profile weights (0.0-1.0). Zero when no profile was applied.
	FitScore float64 `json:"fitScore,omitempty"`

	Recommendation Recommendation `json:"recommendation"`
	BandKey        string         `json:"bandKey,omitempty"`

	HardBlocked  bool     `json:"hardBlocked"`
	BlockReasons []string `json:"blockReasons,omitempty"`

	// ManualReviewRequired is set when the classifier was unavailable and
	// red-flag detection failed open, or when a free-text answer could
	// not be leveled. Never silently treated as "no red flags".
	ManualReviewRequired bool `json:"manualReviewRequired"`

	EvaluatedAt time.Time        `json:"evaluatedAt"`
	Metadata    DecisionMetadata `json:"metadata"`
}

// QuestionScore records the rubric level matched for one question.
type QuestionScore struct {
	QuestionID   string   `json:"questionId"`
	Level        int      `json:"level"`
	Anchor       string   `json:"anchor,omitempty"`
	Critical     bool     `json:"critical"`
	Competencies []string `json:"competencies"`

	// NeedsReview marks answers that could not be leveled (free text
	// with no judge available).
	NeedsReview bool `json:"needsReview,omitempty"`
}

// RedFlagFinding is one triggered red-flag hook.
type RedFlagFinding struct {
	Code       string   `json:"code"`
	QuestionID string   `json:"questionId"`
	Severity   Severity `json:"severity"`
	Confidence float64  `json:"confidence"`

	// Source names the classifier that produced the finding
	// ("keyword", "remote-judge", ...).
	Source string `json:"source,omitempty"`
}

// GateItemResult is the outcome of one requirement check.
type GateItemResult struct {
	Item      string `json:"item"`
	Passed    bool   `json:"passed"`
	Actual    string `json:"actualValue,omitempty"`
	Required  string `json:"requiredValue,omitempty"`
	Mandatory bool   `json:"mandatory"`
	HardBlock bool   `json:"hardBlock"`

	// Reason distinguishes failure causes: "expired",
	// "insufficient_validity", "data_missing", a profile block reason...
	Reason string `json:"reason,omitempty"`
}

// DecisionMetadata carries processing information for observability.
type DecisionMetadata struct {
	TraceID         string `json:"traceId"`
	RubricMs        int64  `json:"rubricMs"`
	RedFlagMs       int64  `json:"redFlagMs"`
	GateMs          int64  `json:"gateMs"`
	TotalMs         int64  `json:"totalMs"`
	QuestionsScored int    `json:"questionsScored"`
	HooksEvaluated  int    `json:"hooksEvaluated"`
	ItemsChecked    int    `json:"itemsChecked"`
	EngineVersion   string `json:"engineVersion"`
}

// DecisionResponse is the API response for an evaluation.
type DecisionResponse struct {
	DecisionID           string           `json:"decisionId"`
	CandidateID          string           `json:"candidateId"`
	OverallScore         float64          `json:"overallScore"`
	RiskLevel            RiskLevel        `json:"riskLevel"`
	Recommendation       Recommendation   `json:"recommendation"`
	HardBlocked          bool             `json:"hardBlocked"`
	BlockReasons         []string         `json:"blockReasons,omitempty"`
	ManualReviewRequired bool             `json:"manualReviewRequired"`
	RedFlags             []string         `json:"redFlags,omitempty"`
	Metadata             DecisionMetadata `json:"metadata"`
}

// ToResponse converts a DecisionResult to its API representation.
func (d *DecisionResult) ToResponse() *DecisionResponse {
	codes := make([]string, 0, len(d.RedFlags))
	for _, f := range d.RedFlags {
		codes = append(codes, f.Code)
	}

	return &DecisionResponse{
		DecisionID:           d.ID,
		CandidateID:          d.CandidateID,
		OverallScore:         d.OverallScore,
		RiskLevel:            d.RiskLevel,
		Recommendation:       d.Recommendation,
		HardBlocked:          d.HardBlocked,
		BlockReasons:         d.BlockReasons,
		ManualReviewRequired: d.ManualReviewRequired,
		RedFlags:             codes,
		Metadata:             d.Metadata,
	}
}
