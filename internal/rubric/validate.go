package rubric

import (
	"fmt"
	"math"
	"sort"

	"github.com/crewgate/crewgate/internal/domain"
)

// ValidateTemplate checks the structural invariants a template must hold
// before activation. Returns *domain.IncompleteRubricError for the first
// rubric with missing levels, or *domain.ProfileIntegrityError listing
// every other problem. A nil return means the template is activatable.
func ValidateTemplate(tpl *domain.AssessmentTemplate) error {
	if tpl == nil {
		return &domain.ProfileIntegrityError{Key: "", Problems: []string{"template is nil"}}
	}

	var problems []string

	if tpl.Scale.Max <= tpl.Scale.Min {
		problems = append(problems, fmt.Sprintf("invalid scale %d-%d", tpl.Scale.Min, tpl.Scale.Max))
	}

	if len(tpl.Competencies) == 0 {
		problems = append(problems, "no competencies defined")
	}

	// Competency weights must sum to 1.0 within tolerance.
	var sum float64
	codes := make(map[string]bool, len(tpl.Competencies))
	for _, c := range tpl.Competencies {
		if c.Code == "" {
			problems = append(problems, "competency with empty code")
			continue
		}
		if codes[c.Code] {
			problems = append(problems, fmt.Sprintf("duplicate competency code %q", c.Code))
		}
		codes[c.Code] = true
		if c.Weight < 0 {
			problems = append(problems, fmt.Sprintf("competency %s has negative weight", c.Code))
		}
		sum += c.Weight
	}
	if len(tpl.Competencies) > 0 && math.Abs(sum-1.0) > domain.WeightEpsilon {
		problems = append(problems, fmt.Sprintf("competency weights sum to %.6f, want 1.0", sum))
	}

	if len(tpl.Questions) == 0 {
		problems = append(problems, "no questions defined")
	}

	for _, q := range tpl.Questions {
		if len(q.CompetencyCodes) == 0 {
			problems = append(problems, fmt.Sprintf("question %s links no competencies", q.ID))
		}
		for _, code := range q.CompetencyCodes {
			if !codes[code] {
				problems = append(problems, fmt.Sprintf("question %s references unknown competency %q", q.ID, code))
			}
		}
		for code := range q.WeightOverrides {
			if !codes[code] {
				problems = append(problems, fmt.Sprintf("question %s overrides weight of unknown competency %q", q.ID, code))
			}
		}
		for _, h := range q.RedFlags {
			if h.Code == "" {
				problems = append(problems, fmt.Sprintf("question %s has a red-flag hook with empty code", q.ID))
			}
			if h.Severity.Rank() == 0 {
				problems = append(problems, fmt.Sprintf("question %s hook %s has invalid severity %q", q.ID, h.Code, h.Severity))
			}
		}
	}

	if len(tpl.Bands) == 0 {
		problems = append(problems, "no score bands defined")
	}
	for _, b := range tpl.Bands {
		if b.MinScore < 0 || b.MinScore > 100 {
			problems = append(problems, fmt.Sprintf("band %s min score %.1f outside 0-100", b.Key, b.MinScore))
		}
	}

	if len(problems) > 0 {
		return &domain.ProfileIntegrityError{Key: tpl.ID, Problems: problems}
	}

	// Rubric completeness is checked last so structural problems surface
	// together first. The first hole found blocks activation; a rubric
	// containing only levels {1,3,5} on a 1-5 scale is a placeholder, not
	// a degraded-but-acceptable rubric.
	for _, q := range tpl.Questions {
		if missing := missingLevels(q.Rubric, tpl.Scale); len(missing) > 0 {
			return &domain.IncompleteRubricError{
				TemplateID: tpl.ID,
				QuestionID: q.ID,
				Scale:      tpl.Scale,
				Missing:    missing,
			}
		}
	}

	return nil
}

// missingLevels returns the scale levels absent from the rubric, in
// ascending order. Empty means the rubric covers the scale contiguously.
func missingLevels(r domain.ScoringRubric, scale domain.RubricScale) []int {
	declared := make(map[int]bool, len(r.Levels))
	for _, l := range r.Levels {
		declared[l.Level] = true
	}

	var missing []int
	for lvl := scale.Min; lvl <= scale.Max; lvl++ {
		if !declared[lvl] {
			missing = append(missing, lvl)
		}
	}
	sort.Ints(missing)
	return missing
}

// Activate validates a template and transitions it to the active state.
// Activation is a validation gate, not a checklist: a template that fails
// validation stays in its current state.
func Activate(tpl *domain.AssessmentTemplate) error {
	if err := ValidateTemplate(tpl); err != nil {
		return err
	}
	tpl.State = domain.TemplateActive
	return nil
}
