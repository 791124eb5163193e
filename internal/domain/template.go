package domain

import "time"

// WeightEpsilon is the tolerance when checking that weights sum to 1.0.
const WeightEpsilon = 1e-6

// LocaleText holds translations of a single piece of content keyed by
// locale code (e.g. "en", "tr", "ru", "az"). Logic never branches on
// locale; only prompts and labels vary.
type LocaleText map[string]string

// Resolve returns the text for the requested locale, falling back to "en"
// and then to any available locale.
func (t LocaleText) Resolve(locale string) string {
	if s, ok := t[locale]; ok {
		return s
	}
	if s, ok := t["en"]; ok {
		return s
	}
	for _, s := range t {
		return s
	}
	return ""
}

// TemplateState is the lifecycle state of an assessment template.
// Templates start as drafts and may only be activated once they pass
// structural validation (complete rubrics, weights summing to 1.0).
type TemplateState string

const (
	TemplateDraft   TemplateState = "draft"
	TemplateActive  TemplateState = "active"
	TemplateRetired TemplateState = "retired"
)

// AssessmentTemplate groups the competencies, questions, rubrics and
// red-flag hooks used to assess a candidate, plus the score bands that
// map the final 0-100 score to a recommendation.
type AssessmentTemplate struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`

	// Version is explicit. A decision records the template version it was
	// evaluated against; superseding a template means saving a new version,
	// never renaming IDs.
	Version string `json:"version"`

	// Scale is the native rubric scale shared by all questions in the
	// template (e.g. 0-5 or 1-5). Scores stay on this scale until the
	// decision composer normalizes to 0-100.
	Scale RubricScale `json:"scale"`

	Competencies []CompetencyDefinition `json:"competencies"`
	Questions    []Question             `json:"questions"`

	// Bands map the normalized 0-100 score to a recommendation.
	// Lower bounds are inclusive.
	Bands []ScoreBand `json:"bands"`

	State TemplateState `json:"state"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// RubricScale declares the discrete scoring scale.
type RubricScale struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// CompetencyDefinition is a weighted behavioral or skill dimension.
// Weights across all competencies in a template must sum to 1.0 within
// WeightEpsilon.
type CompetencyDefinition struct {
	Code   string     `json:"code"`
	Name   LocaleText `json:"name"`
	Weight float64    `json:"weight"`
}

// Question is a single interview question or scenario.
type Question struct {
	ID     string     `json:"id"`
	Prompt LocaleText `json:"prompt"`

	// CompetencyCodes links the question to one or more competencies.
	// The same rubric outcome feeds every linked competency unless a
	// per-competency override is present.
	CompetencyCodes []string           `json:"competencyCodes"`
	WeightOverrides map[string]float64 `json:"weightOverrides,omitempty"`

	// IsCritical marks questions where a bottom-level score or a critical
	// red flag independently downgrades the recommendation.
	IsCritical bool `json:"isCritical"`

	Rubric   ScoringRubric `json:"rubric"`
	RedFlags []RedFlagHook `json:"redFlags,omitempty"`
}

// ScoringRubric is the ordered set of level anchors for a question.
// Levels must cover the template scale contiguously; a rubric with holes
// (the placeholder pattern) keeps its template non-activatable.
type ScoringRubric struct {
	Levels []RubricLevel `json:"levels"`
}

// RubricLevel pairs a discrete level with its anchor description.
type RubricLevel struct {
	Level  int        `json:"level"`
	Anchor LocaleText `json:"anchor"`
}

// Anchor returns the anchor text for a level, or "" if the level is not
// declared.
func (r ScoringRubric) Anchor(level int, locale string) string {
	for _, l := range r.Levels {
		if l.Level == level {
			return l.Anchor.Resolve(locale)
		}
	}
	return ""
}

// Severity classifies how serious a triggered red flag is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for max-severity comparisons.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// RedFlagHook is a named risk pattern attached to a question.
// TriggerGuidance is natural-language heuristic text for a semantic
// classifier, not a regex. Keywords are the deterministic fallback cues.
type RedFlagHook struct {
	Code            string     `json:"code"`
	TriggerGuidance LocaleText `json:"triggerGuidance"`
	Severity        Severity   `json:"severity"`
	Keywords        []string   `json:"keywords,omitempty"`
}

// ScoreBand maps a normalized score range to a recommendation.
// MinScore is the inclusive lower bound; the band with the highest
// MinScore not exceeding the score wins.
type ScoreBand struct {
	Key            string         `json:"key"`
	MinScore       float64        `json:"minScore"`
	Recommendation Recommendation `json:"recommendation"`
	Label          LocaleText     `json:"label,omitempty"`
}
