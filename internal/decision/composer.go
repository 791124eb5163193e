// Package decision implements the decision composer.
// It aggregates rubric scores, red-flag findings and gate results into a
// single immutable DecisionResult.
package decision

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/rubric"
)

// EngineVersion is recorded on every decision for auditability.
const EngineVersion = "crewgate-1.0"

// Numeric risk thresholds on the normalized 0-100 score, applied when no
// red-flag floor dominates.
const (
	riskHighBelow   = 40.0
	riskMediumBelow = 55.0
)

// Composer merges the three independent evaluation outputs. Stateless;
// each Compose call is a pure computation producing one immutable
// result. Re-evaluation produces a new result, never a mutation.
type Composer struct{}

// NewComposer creates a decision composer.
func NewComposer() *Composer {
	return &Composer{}
}

// Input carries everything needed for one decision.
type Input struct {
	TenantID    string
	CandidateID string
	TraceID     string

	Template *domain.AssessmentTemplate
	Profile  *domain.EligibilityProfile // nil when no profile was applied
	Facts    *domain.CandidateFacts     // for prior-score fallbacks

	Rubric   *rubric.Result
	RedFlags *redflag.Result
	Gate     *gate.Result

	StartTime time.Time
	RubricMs  int64
	RedFlagMs int64
	GateMs    int64
}

// Compose builds the final DecisionResult.
//
// Order matters: the hard-block short-circuit decides the recommendation
// before any score-based banding, then the critical-question rule, then
// the band mapping. The overall score is always computed and reported,
// even for hard-blocked candidates, for transparency.
func (c *Composer) Compose(ctx context.Context, in *Input) *domain.DecisionResult {
	d := &domain.DecisionResult{
		ID:          uuid.New().String(),
		TenantID:    in.TenantID,
		CandidateID: in.CandidateID,
		EvaluatedAt: time.Now().UTC(),
		GatePassed:  true,
	}

	if in.Template != nil {
		d.TemplateID = in.Template.ID
		d.TemplateVersion = in.Template.Version
	}
	if in.Profile != nil {
		d.ProfileKey = in.Profile.Key
		d.ProfileVersion = in.Profile.Version
	}

	// 1. Weighted competency score normalized to 0-100.
	d.CompetencyScores = map[string]float64{}
	if in.Rubric != nil {
		d.CompetencyScores = in.Rubric.CompetencyScores
		d.QuestionScores = in.Rubric.QuestionScores
		d.ManualReviewRequired = in.Rubric.NeedsReview
	}
	d.OverallScore = c.weightedScore(in.Template, d.CompetencyScores)

	// 2. Risk level: numeric thresholds with the red-flag severity floor
	// dominating. A critical flag forces CRITICAL regardless of score.
	d.RiskLevel = numericRisk(d.OverallScore)
	if in.RedFlags != nil {
		d.RedFlags = in.RedFlags.Findings
		if in.RedFlags.ManualReviewRequired {
			d.ManualReviewRequired = true
		}
		if in.RedFlags.MaxSeverity != "" {
			d.RiskLevel = d.RiskLevel.Max(severityFloor(in.RedFlags.MaxSeverity))
		}
	}

	// Merge gate results, then behavior thresholds, which need the
	// competency scores and therefore resolve here, not in the gate.
	behaviorFit := 1.0
	if in.Gate != nil {
		d.GateItems = in.Gate.Items
		d.GatePassed = in.Gate.Passed
		d.HardBlocked = in.Gate.HardBlocked
		d.BlockReasons = in.Gate.BlockReasons
	}
	if in.Profile != nil {
		behaviorFit = c.applyBehaviorThresholds(in, d)
		if in.Gate != nil {
			d.FitScore = in.Profile.Weights.Certificates*in.Gate.CertificateFit +
				in.Profile.Weights.Experience*in.Gate.ExperienceFit +
				in.Profile.Weights.Behavior*behaviorFit +
				in.Profile.Weights.Availability*in.Gate.AvailabilityFit
		}
	}

	// 3. Hard block short-circuits the recommendation.
	switch {
	case d.HardBlocked:
		d.Recommendation = domain.RecommendNotRecommended

	// 4. Critical question scored at the bottom, or a critical-severity
	// flag on a critical question, forces NOT_RECOMMENDED regardless of
	// the arithmetic average.
	case c.criticalFailure(in):
		d.Recommendation = domain.RecommendNotRecommended

	// 5. Band mapping with inclusive lower bounds.
	default:
		d.Recommendation, d.BandKey = bandFor(in.Template, d.OverallScore)
		// A soft gate failure never upgrades ineligibility into a full
		// FIT; the candidate is scored but capped pending remediation.
		if !d.GatePassed && d.Recommendation == domain.RecommendFit {
			d.Recommendation = domain.RecommendFitWithTraining
		}
	}

	// 6. Traceability metadata.
	hooks := 0
	if in.RedFlags != nil {
		hooks = in.RedFlags.HooksEvaluated
	}
	totalMs := int64(0)
	if !in.StartTime.IsZero() {
		totalMs = time.Since(in.StartTime).Milliseconds()
	}
	d.Metadata = domain.DecisionMetadata{
		TraceID:         in.TraceID,
		RubricMs:        in.RubricMs,
		RedFlagMs:       in.RedFlagMs,
		GateMs:          in.GateMs,
		TotalMs:         totalMs,
		QuestionsScored: len(d.QuestionScores),
		HooksEvaluated:  hooks,
		ItemsChecked:    len(d.GateItems),
		EngineVersion:   EngineVersion,
	}

	return d
}

// weightedScore computes sum(weight*score)/sum(weight) scaled to 0-100
// by the template's native max.
func (c *Composer) weightedScore(tpl *domain.AssessmentTemplate, scores map[string]float64) float64 {
	if tpl == nil || tpl.Scale.Max == 0 || len(scores) == 0 {
		return 0
	}

	var weighted, totalWeight float64
	for _, comp := range tpl.Competencies {
		score, ok := scores[comp.Code]
		if !ok {
			continue
		}
		weighted += comp.Weight * score
		totalWeight += comp.Weight
	}
	if totalWeight == 0 {
		return 0
	}

	native := weighted / totalWeight
	return native / float64(tpl.Scale.Max) * 100.0
}

// numericRisk derives risk from the normalized score alone.
func numericRisk(score float64) domain.RiskLevel {
	switch {
	case score < riskHighBelow:
		return domain.RiskHigh
	case score < riskMediumBelow:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// severityFloor maps the maximum triggered severity to the minimum risk
// level it imposes.
func severityFloor(s domain.Severity) domain.RiskLevel {
	switch s {
	case domain.SeverityCritical:
		return domain.RiskCritical
	case domain.SeverityHigh:
		return domain.RiskHigh
	case domain.SeverityMedium:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// criticalFailure reports whether the critical-question rule fires: a
// critical question at or below the lowest non-zero level, or a
// critical-severity red flag on a critical question. A non-critical
// question mapping the same competency never suppresses this.
func (c *Composer) criticalFailure(in *Input) bool {
	if in.Rubric != nil && in.Rubric.CriticalLow {
		return true
	}

	if in.RedFlags == nil || in.Rubric == nil {
		return false
	}

	critical := make(map[string]bool)
	for _, qs := range in.Rubric.QuestionScores {
		if qs.Critical {
			critical[qs.QuestionID] = true
		}
	}
	for _, f := range in.RedFlags.Findings {
		if f.Severity == domain.SeverityCritical && critical[f.QuestionID] {
			return true
		}
	}
	return false
}

// bandFor maps the normalized score to the template's declared bands.
// Lower bounds are inclusive: a score exactly at a threshold maps to the
// higher band.
func bandFor(tpl *domain.AssessmentTemplate, score float64) (domain.Recommendation, string) {
	if tpl == nil || len(tpl.Bands) == 0 {
		return domain.RecommendNotRecommended, ""
	}

	bands := make([]domain.ScoreBand, len(tpl.Bands))
	copy(bands, tpl.Bands)
	sort.Slice(bands, func(i, j int) bool { return bands[i].MinScore < bands[j].MinScore })

	chosen := bands[0]
	for _, b := range bands {
		if score >= b.MinScore {
			chosen = b
		}
	}
	return chosen.Recommendation, chosen.Key
}

// applyBehaviorThresholds appends one gate item per behavior threshold
// and returns the behavior fit. Thresholds compare against normalized
// competency scores (0.0-1.0 of the template max), falling back to the
// candidate's prior scores when the competency was not assessed this
// round. A shortfall is a soft gate failure.
func (c *Composer) applyBehaviorThresholds(in *Input, d *domain.DecisionResult) float64 {
	thresholds := in.Profile.BehaviorThresholds
	if len(thresholds) == 0 {
		return 1.0
	}

	scaleMax := 0.0
	if in.Template != nil {
		scaleMax = float64(in.Template.Scale.Max)
	}

	codes := make([]string, 0, len(thresholds))
	for code := range thresholds {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	var fitSum float64
	for _, code := range codes {
		threshold := thresholds[code]
		ir := domain.GateItemResult{
			Item:      "behavior:" + code,
			Mandatory: true,
			Required:  fmt.Sprintf("%.2f", threshold),
		}

		actual, known := 0.0, false
		if score, ok := d.CompetencyScores[code]; ok && scaleMax > 0 {
			actual, known = score/scaleMax, true
		} else if in.Facts != nil {
			if prior, ok := in.Facts.PriorScores[code]; ok {
				actual, known = prior, true
			}
		}

		switch {
		case !known:
			ir.Reason = domain.GateReasonDataMissing
			ir.Actual = "unknown"
		default:
			ir.Actual = fmt.Sprintf("%.2f", actual)
			if actual >= threshold {
				ir.Passed = true
				fitSum += 1.0
			} else if threshold > 0 {
				fitSum += actual / threshold
			}
		}

		if !ir.Passed {
			d.GatePassed = false
		}
		d.GateItems = append(d.GateItems, ir)
	}

	return fitSum / float64(len(thresholds))
}
