// Package rubric provides the competency rubric evaluation engine.
package rubric

import (
	"context"
	"fmt"
	"sync"

	"github.com/crewgate/crewgate/internal/domain"
)

// Evaluator holds validated assessment templates and scores candidate
// answers against their rubrics. Scores stay on each template's native
// integer scale; normalization to 0-100 happens only in the decision
// composer, so rubric comparisons stay stable across 0-5 and 1-5
// templates.
type Evaluator struct {
	mu        sync.RWMutex
	templates map[string]*domain.AssessmentTemplate
	leveler   domain.Leveler
}

// NewEvaluator creates an evaluator. The leveler is optional; without
// one, free-text answers are routed to manual review instead of scored.
func NewEvaluator(leveler domain.Leveler) *Evaluator {
	return &Evaluator{
		templates: make(map[string]*domain.AssessmentTemplate),
		leveler:   leveler,
	}
}

// LoadTemplate validates and loads a single template. Only templates in
// the active state are accepted; drafts stay in the repository until
// activation.
func (e *Evaluator) LoadTemplate(tpl *domain.AssessmentTemplate) error {
	if tpl.State != domain.TemplateActive {
		return fmt.Errorf("template %s is %s, only active templates can be loaded", tpl.ID, tpl.State)
	}
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tpl.ID] = tpl
	return nil
}

// LoadTemplates loads all active templates, skipping drafts.
func (e *Evaluator) LoadTemplates(templates []*domain.AssessmentTemplate) error {
	for _, tpl := range templates {
		if tpl.State != domain.TemplateActive {
			continue
		}
		if err := e.LoadTemplate(tpl); err != nil {
			return err
		}
	}
	return nil
}

// ReloadTemplates clears existing templates and loads new ones.
// This enables hot-reloading of templates from the database.
func (e *Evaluator) ReloadTemplates(templates []*domain.AssessmentTemplate) error {
	loaded := make(map[string]*domain.AssessmentTemplate)
	for _, tpl := range templates {
		if tpl.State != domain.TemplateActive {
			continue
		}
		if err := ValidateTemplate(tpl); err != nil {
			return err
		}
		loaded[tpl.ID] = tpl
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates = loaded
	return nil
}

// GetTemplate returns a loaded template by ID.
func (e *Evaluator) GetTemplate(templateID string) (*domain.AssessmentTemplate, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tpl, ok := e.templates[templateID]
	return tpl, ok
}

// GetLoadedTemplates returns the currently loaded templates.
func (e *Evaluator) GetLoadedTemplates() []*domain.AssessmentTemplate {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.AssessmentTemplate, 0, len(e.templates))
	for _, tpl := range e.templates {
		out = append(out, tpl)
	}
	return out
}

// TemplateCount returns the number of loaded templates.
func (e *Evaluator) TemplateCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.templates)
}

// Close cleans up the evaluator.
func (e *Evaluator) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates = make(map[string]*domain.AssessmentTemplate)
	return nil
}

// Result is the output of scoring one candidate's answers.
type Result struct {
	// QuestionScores records the rubric level matched per question.
	QuestionScores []domain.QuestionScore

	// CompetencyScores are per-competency means on the native scale.
	CompetencyScores map[string]float64

	// CriticalLow is set when a critical question scored at or below the
	// lowest non-zero level of the scale.
	CriticalLow bool

	// NeedsReview is set when any answer could not be leveled.
	NeedsReview bool
}

// Evaluate scores answers against a loaded template's rubrics.
// Pure over its inputs apart from the optional leveler call; nothing is
// mutated until the Result is assembled.
//
// Within a competency, scores from multiple questions are combined by
// arithmetic mean, not by question order. A per-question weight override
// adjusts that question's contribution to the mean; the rubric outcome
// itself is never re-scored.
func (e *Evaluator) Evaluate(ctx context.Context, templateID string, answers []domain.Answer, locale string) (*Result, error) {
	e.mu.RLock()
	tpl, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("template %s not loaded", templateID)
	}

	questions := make(map[string]*domain.Question, len(tpl.Questions))
	for i := range tpl.Questions {
		questions[tpl.Questions[i].ID] = &tpl.Questions[i]
	}

	result := &Result{
		CompetencyScores: make(map[string]float64, len(tpl.Competencies)),
	}

	// Accumulate weighted sums and weights per competency.
	sums := make(map[string]float64)
	weights := make(map[string]float64)

	lowestNonZero := tpl.Scale.Min
	if lowestNonZero < 1 {
		lowestNonZero = 1
	}

	for _, ans := range answers {
		q, ok := questions[ans.QuestionID]
		if !ok {
			return nil, fmt.Errorf("answer references unknown question %s", ans.QuestionID)
		}

		level, anchor, scored := e.levelAnswer(ctx, tpl, q, ans, locale)

		qs := domain.QuestionScore{
			QuestionID:   q.ID,
			Level:        level,
			Anchor:       anchor,
			Critical:     q.IsCritical,
			Competencies: q.CompetencyCodes,
			NeedsReview:  !scored,
		}
		result.QuestionScores = append(result.QuestionScores, qs)

		if !scored {
			result.NeedsReview = true
			continue
		}

		if q.IsCritical && level <= lowestNonZero {
			result.CriticalLow = true
		}

		for _, code := range q.CompetencyCodes {
			w := 1.0
			if ov, ok := q.WeightOverrides[code]; ok {
				w = ov
			}
			sums[code] += float64(level) * w
			weights[code] += w
		}
	}

	for code, total := range sums {
		if weights[code] > 0 {
			result.CompetencyScores[code] = total / weights[code]
		}
	}

	return result, nil
}

// levelAnswer resolves an answer to a rubric level. Returns scored=false
// when the answer cannot be leveled, which routes it to manual review.
func (e *Evaluator) levelAnswer(ctx context.Context, tpl *domain.AssessmentTemplate, q *domain.Question, ans domain.Answer, locale string) (level int, anchor string, scored bool) {
	if ans.Locale != "" {
		locale = ans.Locale
	}

	if ans.Level != nil {
		lvl := *ans.Level
		if lvl < tpl.Scale.Min || lvl > tpl.Scale.Max {
			return 0, "", false
		}
		return lvl, q.Rubric.Anchor(lvl, locale), true
	}

	if ans.Text == "" || e.leveler == nil {
		return 0, "", false
	}

	lvl, rationale, err := e.leveler.LevelAnswer(ctx, ans.Text, q.Rubric, locale)
	if err != nil || lvl < tpl.Scale.Min || lvl > tpl.Scale.Max {
		return 0, "", false
	}
	if rationale == "" {
		rationale = q.Rubric.Anchor(lvl, locale)
	}
	return lvl, rationale, true
}
