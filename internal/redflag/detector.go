// Package redflag provides red-flag detection over candidate answers.
package redflag

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

// classifierFailureWindow bounds the per-tenant failure counter TTL.
const classifierFailureWindow = time.Hour

// Detector scans answers for the red-flag hooks attached to their
// questions. Detection is delegated to a pluggable classifier; the
// detector only owns the retention and fail-open policy.
type Detector struct {
	classifier domain.Classifier
	cache      domain.Cache
	timeout    time.Duration
}

// NewDetector creates a detector. The cache is optional and only used to
// count classifier failures per tenant for observability.
func NewDetector(classifier domain.Classifier, cache domain.Cache, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Detector{
		classifier: classifier,
		cache:      cache,
		timeout:    timeout,
	}
}

// Result is the outcome of one scan.
type Result struct {
	// Findings retains every triggered hook; there is no
	// first-match-wins cutoff.
	Findings []domain.RedFlagFinding

	// MaxSeverity is the floor the composer applies to risk level.
	// Empty when nothing triggered.
	MaxSeverity domain.Severity

	// ManualReviewRequired is set when the classifier was unavailable
	// for any hook. The scan fails open: an unavailable classifier means
	// a human looks at the answers, never that the answers pass clean.
	ManualReviewRequired bool

	// HooksEvaluated counts classifier calls attempted.
	HooksEvaluated int
}

// Scan classifies every hook of every answered question against the
// answer text. Answers without text (pre-leveled upstream) carry no
// signal for the classifier and are skipped.
//
// Scan never returns an error for classifier failures; those surface as
// ManualReviewRequired on the result so a single candidate's evaluation
// still completes.
func (d *Detector) Scan(ctx context.Context, tpl *domain.AssessmentTemplate, answers []domain.Answer) *Result {
	result := &Result{}

	// A nil template means the registry dropped it mid-pipeline (hot
	// reload); the hooks cannot be evaluated, so fail open.
	if tpl == nil {
		result.ManualReviewRequired = true
		return result
	}

	questions := make(map[string]*domain.Question, len(tpl.Questions))
	for i := range tpl.Questions {
		questions[tpl.Questions[i].ID] = &tpl.Questions[i]
	}

	for _, ans := range answers {
		q, ok := questions[ans.QuestionID]
		if !ok || ans.Text == "" || len(q.RedFlags) == 0 {
			continue
		}

		for _, hook := range q.RedFlags {
			result.HooksEvaluated++

			if d.classifier == nil {
				result.ManualReviewRequired = true
				continue
			}

			callCtx, cancel := context.WithTimeout(ctx, d.timeout)
			cls, err := d.classifier.Classify(callCtx, ans.Text, hook)
			cancel()

			if err != nil {
				if errors.Is(err, domain.ErrClassifierUnavailable) || callCtx.Err() != nil {
					result.ManualReviewRequired = true
					d.recordFailure(ctx, tpl.TenantID)
					slog.Warn("classifier unavailable, failing open to manual review",
						"hook", hook.Code,
						"question_id", q.ID,
						"classifier", d.classifier.Name(),
						"error", err,
					)
					continue
				}
				// A per-hook judgment error is not an availability
				// problem; the hook is simply not triggered.
				slog.Debug("hook classification failed",
					"hook", hook.Code,
					"error", err,
				)
				continue
			}

			if cls.Triggered {
				result.Findings = append(result.Findings, domain.RedFlagFinding{
					Code:       hook.Code,
					QuestionID: q.ID,
					Severity:   hook.Severity,
					Confidence: cls.Confidence,
					Source:     d.classifier.Name(),
				})
				if hook.Severity.Rank() > result.MaxSeverity.Rank() {
					result.MaxSeverity = hook.Severity
				}
			}
		}
	}

	return result
}

func (d *Detector) recordFailure(ctx context.Context, tenantID string) {
	if d.cache == nil || tenantID == "" {
		return
	}
	if _, err := d.cache.IncrementCounter(ctx, tenantID, "classifier:failures", classifierFailureWindow); err != nil {
		slog.Debug("failed to record classifier failure", "error", err)
	}
}
