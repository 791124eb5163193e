package redflag

import (
	"context"
	"strings"
	"unicode"

	"github.com/crewgate/crewgate/internal/domain"
)

// KeywordClassifier is the deterministic fallback classifier: it matches
// a hook's keyword cues against the answer text, case-insensitively and
// across the locales the cues were authored in.
//
// Lower recall than a semantic judge by design; the trigger guidance on
// hooks is written for an LLM and is ignored here. Hooks without keyword
// cues never trigger under this classifier.
type KeywordClassifier struct{}

// NewKeywordClassifier creates the deterministic fallback classifier.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Name identifies the classifier in decision traces.
func (c *KeywordClassifier) Name() string { return "keyword" }

// Classify reports whether any of the hook's keyword cues appears in the
// text. Confidence is fixed low for single-word cues and higher for
// phrase cues, reflecting how specific the match is.
func (c *KeywordClassifier) Classify(_ context.Context, text string, hook domain.RedFlagHook) (domain.Classification, error) {
	if len(hook.Keywords) == 0 {
		return domain.Classification{}, nil
	}

	normalized := normalize(text)

	for _, cue := range hook.Keywords {
		nc := normalize(cue)
		if nc == "" {
			continue
		}
		if strings.Contains(normalized, nc) {
			confidence := 0.5
			if strings.ContainsRune(nc, ' ') {
				confidence = 0.75
			}
			return domain.Classification{Triggered: true, Confidence: confidence}, nil
		}
	}

	return domain.Classification{}, nil
}

// normalize lowercases and collapses whitespace/punctuation so cue
// matching survives casing and simple punctuation differences in
// Turkish, Russian, Azerbaijani and English text.
func normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			b.WriteRune(r)
			lastSpace = false
			continue
		}
		if !lastSpace {
			b.WriteRune(' ')
			lastSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
