// Package worker provides async candidate processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crewgate/crewgate/internal/decision"
	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/rubric"
)

// Worker processes submitted candidates asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	cache     domain.Cache
	evaluator *rubric.Evaluator
	detector  *redflag.Detector
	gate      *gate.Gate
	composer  *decision.Composer

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string

	// WorkerCount is the number of concurrent workers per tenant
	WorkerCount int
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, cache domain.Cache,
	evaluator *rubric.Evaluator, detector *redflag.Detector, g *gate.Gate,
	composer *decision.Composer) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		cache:     cache,
		evaluator: evaluator,
		detector:  detector,
		gate:      g,
		composer:  composer,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start begins processing messages for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicCandidateSubmitted, w.handleMessage)
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicCandidateSubmitted, func(ctx context.Context, msg *domain.Message) error {
		return w.processCandidate(ctx, tenantID, msg)
	})
	if err != nil {
		return err
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicCandidateSubmitted,
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processCandidate(ctx, msg.TenantID, msg)
}

// CandidateMessage is the message payload for candidate processing.
type CandidateMessage struct {
	CandidateID string                 `json:"candidateId"`
	TenantID    string                 `json:"tenantId"`
	TraceID     string                 `json:"traceId"`
	TemplateID  string                 `json:"templateId"`
	ProfileKey  string                 `json:"profileKey,omitempty"`
	Locale      string                 `json:"locale,omitempty"`
	Answers     []domain.Answer        `json:"answers"`
	Facts       *domain.CandidateFacts `json:"facts,omitempty"`
}

// processCandidate evaluates a candidate through the pipeline.
func (w *Worker) processCandidate(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var cm CandidateMessage
	if err := json.Unmarshal(msg.Payload, &cm); err != nil {
		slog.Error("failed to parse candidate message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}

	// Use message tenant if provided
	if cm.TenantID != "" {
		tenantID = cm.TenantID
	}

	traceID := cm.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing candidate",
		"candidate_id", cm.CandidateID,
		"tenant_id", tenantID,
		"trace_id", traceID,
	)

	// Facts may ride on the message or be cached by the ingest path.
	facts := cm.Facts
	if facts == nil && w.cache != nil {
		facts, _ = w.cache.GetFacts(ctx, tenantID, cm.CandidateID)
	}
	if facts == nil {
		facts = &domain.CandidateFacts{CandidateID: cm.CandidateID}
	}

	// 1. Score answers against the rubric.
	rubricStart := time.Now()
	rubricResult, err := w.evaluator.Evaluate(ctx, cm.TemplateID, cm.Answers, cm.Locale)
	if err != nil {
		slog.Error("rubric evaluation failed",
			"candidate_id", cm.CandidateID,
			"template_id", cm.TemplateID,
			"error", err,
		)
		return err
	}
	rubricMs := time.Since(rubricStart).Milliseconds()

	// A concurrent reload can retire the template between scoring and
	// here; fail this one candidate instead of panicking the worker.
	tpl, ok := w.evaluator.GetTemplate(cm.TemplateID)
	if !ok {
		slog.Error("template retired during evaluation",
			"candidate_id", cm.CandidateID,
			"template_id", cm.TemplateID,
		)
		return fmt.Errorf("template %s not loaded", cm.TemplateID)
	}

	// 2. Scan free-text answers for red flags.
	redFlagStart := time.Now()
	flagResult := w.detector.Scan(ctx, tpl, cm.Answers)
	redFlagMs := time.Since(redFlagStart).Milliseconds()

	// 3. Eligibility gate, when a profile is named.
	var gateResult *gate.Result
	var profile *domain.EligibilityProfile
	gateStart := time.Now()
	if cm.ProfileKey != "" {
		gateResult, err = w.gate.Evaluate(ctx, tenantID, cm.ProfileKey, facts, time.Now().UTC())
		if err != nil {
			slog.Error("gate evaluation failed",
				"candidate_id", cm.CandidateID,
				"profile_key", cm.ProfileKey,
				"error", err,
			)
			return err
		}
		profile, _ = w.gate.GetProfile(cm.ProfileKey)
	}
	gateMs := time.Since(gateStart).Milliseconds()

	// 4. Compose the decision.
	result := w.composer.Compose(ctx, &decision.Input{
		TenantID:    tenantID,
		CandidateID: cm.CandidateID,
		TraceID:     traceID,
		Template:    tpl,
		Profile:     profile,
		Facts:       facts,
		Rubric:      rubricResult,
		RedFlags:    flagResult,
		Gate:        gateResult,
		StartTime:   start,
		RubricMs:    rubricMs,
		RedFlagMs:   redFlagMs,
		GateMs:      gateMs,
	})

	// 5. Save the decision.
	if w.repo != nil {
		if err := w.repo.SaveDecision(ctx, tenantID, result); err != nil {
			slog.Error("failed to save decision",
				"candidate_id", cm.CandidateID,
				"error", err,
			)
		}
	}

	// 6. Publish result to decision topic.
	resultPayload, _ := json.Marshal(result)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, resultPayload); err != nil {
		slog.Error("failed to publish decision",
			"candidate_id", cm.CandidateID,
			"error", err,
		)
	}

	// 7. Manual-review decisions go to the review queue as well.
	if result.ManualReviewRequired {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicReview, resultPayload); err != nil {
			slog.Error("failed to publish review request",
				"candidate_id", cm.CandidateID,
				"error", err,
			)
		}
	}

	slog.Info("candidate processed",
		"candidate_id", cm.CandidateID,
		"tenant_id", tenantID,
		"recommendation", result.Recommendation,
		"score", result.OverallScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
