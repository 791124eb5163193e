package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crewgate/crewgate/internal/decision"
	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/rubric"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	evaluator *rubric.Evaluator
	detector  *redflag.Detector
	gate      *gate.Gate
	composer  *decision.Composer
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, evaluator *rubric.Evaluator, detector *redflag.Detector, g *gate.Gate, composer *decision.Composer, version string) *Handler {
	return &Handler{
		repo:      repo,
		cache:     cache,
		bus:       bus,
		evaluator: evaluator,
		detector:  detector,
		gate:      g,
		composer:  composer,
		version:   version,
	}
}

// EvaluateRequest is the request body for POST /evaluate.
type EvaluateRequest struct {
	CandidateID string                 `json:"candidateId"`
	TemplateID  string                 `json:"templateId"`
	ProfileKey  string                 `json:"profileKey,omitempty"`
	Locale      string                 `json:"locale,omitempty"`
	Answers     []domain.Answer        `json:"answers"`
	Facts       *domain.CandidateFacts `json:"facts,omitempty"`
}

// Evaluate handles POST /evaluate requests.
// Synchronous evaluation (Community tier / direct mode): the full
// pipeline runs in the request, and the summary is returned. The full
// decision record is retrievable via GET /decisions/{id}.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.CandidateID == "" || req.TemplateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "candidateId and templateId are required",
		})
		return
	}
	if len(req.Answers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "at least one answer is required",
		})
		return
	}

	// Facts ride on the request or come from the ingest cache. An empty
	// set is legal: the gate then reports data_missing items rather
	// than failing the call.
	facts := req.Facts
	if facts == nil && h.cache != nil {
		facts, _ = h.cache.GetFacts(ctx, tenantID, req.CandidateID)
	}
	if facts == nil {
		facts = &domain.CandidateFacts{CandidateID: req.CandidateID}
	} else if h.cache != nil && req.Facts != nil {
		// Cache request-supplied facts for any async follow-up.
		_ = h.cache.SetFacts(ctx, tenantID, req.CandidateID, facts, 10*time.Minute)
	}

	// 1. Score answers against the rubric.
	rubricStart := time.Now()
	rubricResult, err := h.evaluator.Evaluate(ctx, req.TemplateID, req.Answers, req.Locale)
	if err != nil {
		slog.Error("rubric evaluation failed",
			"template_id", req.TemplateID,
			"error", err,
		)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "rubric evaluation failed: " + err.Error(),
		})
		return
	}
	rubricMs := time.Since(rubricStart).Milliseconds()

	// A concurrent reload can retire the template between scoring and
	// here; error this one evaluation rather than dereference nil.
	tpl, ok := h.evaluator.GetTemplate(req.TemplateID)
	if !ok {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": "template not loaded: " + req.TemplateID,
		})
		return
	}

	// 2. Scan free-text answers for red flags.
	redFlagStart := time.Now()
	flagResult := h.detector.Scan(ctx, tpl, req.Answers)
	redFlagMs := time.Since(redFlagStart).Milliseconds()

	// 3. Eligibility gate, when a profile is named.
	var gateResult *gate.Result
	var profile *domain.EligibilityProfile
	gateStart := time.Now()
	if req.ProfileKey != "" {
		gateResult, err = h.gate.Evaluate(ctx, tenantID, req.ProfileKey, facts, time.Now().UTC())
		if err != nil {
			slog.Error("gate evaluation failed",
				"profile_key", req.ProfileKey,
				"error", err,
			)
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "gate evaluation failed: " + err.Error(),
			})
			return
		}
		profile, _ = h.gate.GetProfile(req.ProfileKey)
	}
	gateMs := time.Since(gateStart).Milliseconds()

	// 4. Compose the decision.
	result := h.composer.Compose(ctx, &decision.Input{
		TenantID:    tenantID,
		CandidateID: req.CandidateID,
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

	// 5. Persist the decision.
	if h.repo != nil {
		if err := h.repo.SaveDecision(ctx, tenantID, result); err != nil {
			slog.Error("failed to save decision", "error", err)
		}
	}

	// 6. Publish for downstream consumers.
	if h.bus != nil {
		payload, _ := json.Marshal(result)
		if err := h.bus.Publish(ctx, tenantID, domain.TopicDecision, payload); err != nil {
			slog.Error("failed to publish decision", "error", err)
		}
		if result.ManualReviewRequired {
			if err := h.bus.Publish(ctx, tenantID, domain.TopicReview, payload); err != nil {
				slog.Error("failed to publish review request", "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, result.ToResponse())
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetDecision retrieves a full decision record by ID.
func (h *Handler) GetDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	decisionID := chi.URLParam(r, "id")

	if decisionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decision id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	d, err := h.repo.GetDecision(ctx, tenantID, decisionID)
	if err != nil {
		slog.Error("failed to get decision", "id", decisionID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "decision not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// CreateCandidate registers a candidate.
func (h *Handler) CreateCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var c domain.Candidate
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.TenantID = tenantID
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveCandidate(ctx, tenantID, &c); err != nil {
		slog.Error("failed to save candidate", "id", c.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save candidate",
		})
		return
	}

	writeJSON(w, http.StatusCreated, &c)
}

// GetCandidate retrieves a candidate by ID.
func (h *Handler) GetCandidate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	candidateID := chi.URLParam(r, "id")

	if candidateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "candidate id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	c, err := h.repo.GetCandidate(ctx, tenantID, candidateID)
	if err != nil {
		slog.Error("failed to get candidate", "id", candidateID, "error", err)
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "candidate not found",
		})
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// AddServiceRecord appends a sea-service contract to a candidate.
func (h *Handler) AddServiceRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	candidateID := chi.URLParam(r, "id")

	var rec domain.ServiceRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if rec.VesselTypeKey == "" || rec.RankCode == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "vesselTypeKey and rankCode are required",
		})
		return
	}
	if rec.SignOff.Before(rec.SignOn) {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "signOff must not precede signOn",
		})
		return
	}

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	rec.CandidateID = candidateID
	rec.TenantID = tenantID

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveServiceRecord(ctx, tenantID, &rec); err != nil {
		slog.Error("failed to save service record", "candidate_id", candidateID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save service record",
		})
		return
	}

	writeJSON(w, http.StatusCreated, &rec)
}

// ListServiceRecords returns a candidate's sea-service history.
func (h *Handler) ListServiceRecords(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	candidateID := chi.URLParam(r, "id")

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	recs, err := h.repo.GetServiceRecords(ctx, tenantID, candidateID)
	if err != nil {
		slog.Error("failed to list service records", "candidate_id", candidateID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list service records",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": recs,
		"count":   len(recs),
	})
}

// ListTemplates returns all templates loaded in the evaluator.
// Templates are loaded from the database at startup and can be reloaded
// via POST /templates/reload.
func (h *Handler) ListTemplates(w http.ResponseWriter, r *http.Request) {
	loaded := h.evaluator.GetLoadedTemplates()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"templates": loaded,
		"count":     len(loaded),
		"source":    "database",
	})
}

// GetTemplate retrieves a template by ID from the loaded evaluator.
func (h *Handler) GetTemplate(w http.ResponseWriter, r *http.Request) {
	templateID := chi.URLParam(r, "id")

	if templateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "template id is required",
		})
		return
	}

	if tpl, ok := h.evaluator.GetTemplate(templateID); ok {
		writeJSON(w, http.StatusOK, tpl)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "template not found",
	})
}

// CreateTemplate saves a template version. New templates start as
// drafts; an incomplete rubric or bad weights are rejected only at
// activation, so authors can save work in progress.
func (h *Handler) CreateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var tpl domain.AssessmentTemplate
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if tpl.ID == "" || tpl.Name == "" || tpl.Version == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and version are required",
		})
		return
	}

	if tpl.State == "" {
		tpl.State = domain.TemplateDraft
	}
	if tpl.State == domain.TemplateActive {
		// Activating on create requires a fully valid template.
		if err := rubric.ValidateTemplate(&tpl); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": err.Error(),
			})
			return
		}
	}
	tpl.TenantID = tenantID

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	if err := h.repo.SaveTemplate(ctx, tenantID, &tpl); err != nil {
		slog.Error("failed to save template", "id", tpl.ID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save template",
		})
		return
	}

	slog.Info("template created", "id", tpl.ID, "version", tpl.Version, "state", tpl.State)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"template": &tpl,
		"message":  "Template saved. Activate it and call POST /templates/reload to apply changes.",
	})
}

// ActivateTemplate validates a stored template and moves it to the
// active state. Validation failures (weight sums, rubric holes) are
// returned verbatim so the author can fix the template.
func (h *Handler) ActivateTemplate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	templateID := chi.URLParam(r, "id")

	if templateID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "template id is required",
		})
		return
	}

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	tpl, err := h.repo.GetTemplate(ctx, tenantID, templateID)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error": "template not found",
		})
		return
	}

	if err := rubric.Activate(tpl); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if err := h.repo.SaveTemplate(ctx, tenantID, tpl); err != nil {
		slog.Error("failed to save activated template", "id", templateID, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to save template",
		})
		return
	}

	// Activated templates go live immediately.
	if err := h.evaluator.LoadTemplate(tpl); err != nil {
		slog.Error("failed to load activated template", "id", templateID, "error", err)
	}

	slog.Info("template activated", "id", templateID, "version", tpl.Version)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"template": tpl,
		"message":  "Template activated and loaded.",
	})
}

// ReloadTemplates reloads all active templates from the database into
// the evaluator. This enables hot-reloading without server restart.
func (h *Handler) ReloadTemplates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbTemplates, err := h.repo.ListTemplates(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list templates from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load templates from database",
		})
		return
	}

	if err := h.evaluator.ReloadTemplates(dbTemplates); err != nil {
		slog.Error("failed to reload templates into evaluator", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload templates: " + err.Error(),
		})
		return
	}

	slog.Info("templates reloaded from database", "count", h.evaluator.TemplateCount())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "templates reloaded successfully",
		"count":   h.evaluator.TemplateCount(),
	})
}

// ListProfiles returns all loaded eligibility profiles.
func (h *Handler) ListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles := h.gate.GetLoadedProfiles()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"profiles": profiles,
		"count":    len(profiles),
		"source":   "database",
	})
}

// GetProfile retrieves an eligibility profile by key.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "profile key is required",
		})
		return
	}

	if p, ok := h.gate.GetProfile(key); ok {
		writeJSON(w, http.StatusOK, p)
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "profile not found",
	})
}

// CreateProfile validates and saves an eligibility profile.
func (h *Handler) CreateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var p domain.EligibilityProfile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if p.Key == "" || p.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "key and name are required",
		})
		return
	}
	if p.Version == "" {
		p.Version = "1"
	}
	p.TenantID = tenantID

	// Validate fit weights, block reasons and CEL conditions by
	// attempting a load.
	if err := h.gate.ValidateProfile(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": err.Error(),
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.SaveProfile(ctx, tenantID, &p); err != nil {
			slog.Error("failed to save profile", "key", p.Key, "error", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{
				"error": "failed to save profile",
			})
			return
		}
	}

	slog.Info("profile created", "key", p.Key, "version", p.Version)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"profile": &p,
		"message": "Profile created. Call POST /profiles/reload to apply changes.",
	})
}

// DeleteProfile disables a profile and auto-reloads the gate.
func (h *Handler) DeleteProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	key := chi.URLParam(r, "key")

	if key == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "profile key is required",
		})
		return
	}

	if h.repo != nil {
		if err := h.repo.DeleteProfile(ctx, tenantID, key); err != nil {
			slog.Error("failed to delete profile", "key", key, "error", err)
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "profile not found",
			})
			return
		}

		// Auto-reload the gate after delete
		dbProfiles, err := h.repo.ListProfiles(ctx, tenantID)
		if err != nil {
			slog.Error("failed to reload profiles after delete", "error", err)
		} else if err := h.gate.ReloadProfiles(dbProfiles); err != nil {
			slog.Error("failed to reload profiles into gate", "error", err)
		} else {
			slog.Info("profiles auto-reloaded after delete", "count", len(dbProfiles))
		}
	}

	slog.Info("profile deleted", "key", key)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "Profile deleted and gate reloaded.",
	})
}

// ReloadProfiles reloads all enabled profiles from the database into
// the gate.
func (h *Handler) ReloadProfiles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "repository not available",
		})
		return
	}

	dbProfiles, err := h.repo.ListProfiles(ctx, tenantID)
	if err != nil {
		slog.Error("failed to list profiles from database", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to load profiles from database",
		})
		return
	}

	if err := h.gate.ReloadProfiles(dbProfiles); err != nil {
		slog.Error("failed to reload profiles into gate", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload profiles: " + err.Error(),
		})
		return
	}

	slog.Info("profiles reloaded from database", "count", len(dbProfiles))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": "profiles reloaded successfully",
		"count":   len(dbProfiles),
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
