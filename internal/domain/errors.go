package domain

import (
	"errors"
	"fmt"
)

// ErrClassifierUnavailable signals that the classifier capability cannot
// be reached. The red-flag detector fails open into manual review.
var ErrClassifierUnavailable = errors.New("classifier unavailable")

// Gate item failure reasons. data_missing is distinct from a genuine
// expiry failure: downstream remediation asks for the missing document
// instead of rejecting the candidate.
const (
	GateReasonExpired              = "expired"
	GateReasonInsufficientValidity = "insufficient_validity"
	GateReasonDataMissing          = "data_missing"
	GateReasonInsufficientMonths   = "insufficient_experience"
)

// IncompleteRubricError reports a rubric whose level set does not cover
// the template scale contiguously. Recoverable: the template is routed
// to "needs content" and stays non-activatable.
type IncompleteRubricError struct {
	TemplateID string
	QuestionID string
	Scale      RubricScale
	Missing    []int
}

func (e *IncompleteRubricError) Error() string {
	return fmt.Sprintf("incomplete rubric: template %s question %s missing levels %v on scale %d-%d",
		e.TemplateID, e.QuestionID, e.Missing, e.Scale.Min, e.Scale.Max)
}

// ProfileIntegrityError reports structural problems in a template or
// profile found at load time, before any candidate is scored against it:
// weights not summing to 1.0, hard-block items without a block reason,
// unknown competency codes.
type ProfileIntegrityError struct {
	Key      string
	Problems []string
}

func (e *ProfileIntegrityError) Error() string {
	return fmt.Sprintf("profile integrity: %s: %v", e.Key, e.Problems)
}
