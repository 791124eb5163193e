package redflag

import (
	"fmt"

	"github.com/crewgate/crewgate/internal/domain"
)

// NewClassifier creates a classifier based on configuration.
// For Community tier: returns the deterministic keyword classifier.
// For Pro tier: returns the remote LLM judge.
func NewClassifier(cfg domain.ClassifierConfig) (domain.Classifier, error) {
	switch cfg.Type {
	case "keyword":
		return NewKeywordClassifier(), nil

	case "remote":
		return NewRemoteJudge(cfg)

	default:
		return nil, fmt.Errorf("unsupported classifier type: %s", cfg.Type)
	}
}
