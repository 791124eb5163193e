package domain

import "context"

// Classification is the verdict for one red-flag hook on one answer.
type Classification struct {
	Triggered  bool    `json:"triggered"`
	Confidence float64 `json:"confidence"`
}

// Classifier judges whether a red-flag trigger is present in a response.
// The hook carries both the natural-language trigger guidance (for a
// semantic judge) and deterministic keyword cues (for the offline
// fallback); implementations use whichever side fits their fidelity.
//
// Implementations must return ErrClassifierUnavailable (wrapped or bare)
// when the backing capability cannot be reached, so the detector can
// fail open into manual review instead of silently skipping detection.
type Classifier interface {
	// Classify judges a single hook against a response text.
	Classify(ctx context.Context, text string, hook RedFlagHook) (Classification, error)

	// Name identifies the implementation in decision traces.
	Name() string
}

// Leveler maps a free-text answer onto a rubric level. Backed by the
// same remote judge as the Classifier; environments without one handle
// only pre-scored answers and route text answers to manual review.
type Leveler interface {
	// LevelAnswer returns the matched rubric level and its rationale.
	LevelAnswer(ctx context.Context, text string, rubric ScoringRubric, locale string) (int, string, error)
}

// ClassifierConfig holds configuration for classifier initialization.
type ClassifierConfig struct {
	// Type is the classifier type: "keyword" or "remote"
	Type string

	// Remote judge settings
	Endpoint    string
	APIKey      string
	Model       string
	TimeoutSecs int
}
