package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/crewgate/crewgate/internal/decision"
	"github.com/crewgate/crewgate/internal/domain"
	"github.com/crewgate/crewgate/internal/gate"
	"github.com/crewgate/crewgate/internal/redflag"
	"github.com/crewgate/crewgate/internal/rubric"
)

func intPtr(v int) *int { return &v }

func testTemplate() *domain.AssessmentTemplate {
	levels := []domain.RubricLevel{
		{Level: 0, Anchor: domain.LocaleText{"en": "unacceptable"}},
		{Level: 1, Anchor: domain.LocaleText{"en": "poor"}},
		{Level: 2, Anchor: domain.LocaleText{"en": "weak"}},
		{Level: 3, Anchor: domain.LocaleText{"en": "adequate"}},
		{Level: 4, Anchor: domain.LocaleText{"en": "good"}},
		{Level: 5, Anchor: domain.LocaleText{"en": "excellent"}},
	}

	return &domain.AssessmentTemplate{
		ID:      "tpl-cook",
		Name:    "Cook Interview",
		Version: "1",
		Scale:   domain.RubricScale{Min: 0, Max: 5},
		Competencies: []domain.CompetencyDefinition{
			{Code: "hygiene", Name: domain.LocaleText{"en": "Hygiene"}, Weight: 0.5},
			{Code: "teamwork", Name: domain.LocaleText{"en": "Teamwork"}, Weight: 0.5},
		},
		Questions: []domain.Question{
			{ID: "q1", CompetencyCodes: []string{"hygiene"}, Rubric: domain.ScoringRubric{Levels: levels}},
			{ID: "q2", CompetencyCodes: []string{"teamwork"}, Rubric: domain.ScoringRubric{Levels: levels}},
		},
		Bands: []domain.ScoreBand{
			{Key: "fit", MinScore: 70, Recommendation: domain.RecommendFit},
			{Key: "trainable", MinScore: 50, Recommendation: domain.RecommendFitWithTraining},
			{Key: "unfit", MinScore: 0, Recommendation: domain.RecommendNotRecommended},
		},
		State: domain.TemplateActive,
	}
}

// createTestServer creates a server with an in-memory pipeline and no
// repository, which exercises the sync evaluation path.
func createTestServer() *Server {
	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}

	evaluator := rubric.NewEvaluator(nil)
	if err := evaluator.LoadTemplate(testTemplate()); err != nil {
		panic(err)
	}

	detector := redflag.NewDetector(redflag.NewKeywordClassifier(), nil, time.Second)

	g, err := gate.New(nil)
	if err != nil {
		panic(err)
	}
	err = g.LoadProfile(&domain.EligibilityProfile{
		Key:     "cook-profile",
		Name:    "Ship Cook",
		Version: "1",
		RequiredItems: []domain.RequirementItem{
			{Type: "FOOD_SAFETY", MinRemainingMonths: 3, Mandatory: true},
		},
		Weights: domain.FitWeights{Certificates: 0.5, Experience: 0.2, Behavior: 0.2, Availability: 0.1},
		Enabled: true,
	})
	if err != nil {
		panic(err)
	}

	return NewServer(cfg, nil, nil, nil, evaluator, detector, g, decision.NewComposer(), "test-v1")
}

func TestEvaluateEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("SuccessfulEvaluation", func(t *testing.T) {
		reqBody := EvaluateRequest{
			CandidateID: "cand-001",
			TemplateID:  "tpl-cook",
			ProfileKey:  "cook-profile",
			Answers: []domain.Answer{
				{QuestionID: "q1", Level: intPtr(4)},
				{QuestionID: "q2", Level: intPtr(5)},
			},
			Facts: &domain.CandidateFacts{
				CandidateID: "cand-001",
				Certificates: []domain.Certificate{
					{Type: "FOOD_SAFETY", ExpiresAt: time.Now().AddDate(1, 0, 0)},
				},
			},
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.DecisionResponse
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}

		if resp.DecisionID == "" {
			t.Error("expected decisionId in response")
		}
		if resp.CandidateID != "cand-001" {
			t.Errorf("expected candidateId 'cand-001', got '%s'", resp.CandidateID)
		}
		// 4*0.5 + 5*0.5 = 4.5 of 5 -> 90
		if resp.OverallScore < 89.9 || resp.OverallScore > 90.1 {
			t.Errorf("expected overall score 90, got %.2f", resp.OverallScore)
		}
		if resp.Recommendation != domain.RecommendFit {
			t.Errorf("expected FIT, got %s", resp.Recommendation)
		}
		if resp.HardBlocked {
			t.Error("unexpected hard block")
		}
		if resp.Metadata.TraceID == "" {
			t.Error("expected traceId in metadata")
		}
		if resp.Metadata.EngineVersion == "" {
			t.Error("expected engineVersion in metadata")
		}
	})

	t.Run("MissingCertificateBlocksGate", func(t *testing.T) {
		reqBody := EvaluateRequest{
			CandidateID: "cand-002",
			TemplateID:  "tpl-cook",
			ProfileKey:  "cook-profile",
			Answers: []domain.Answer{
				{QuestionID: "q1", Level: intPtr(4)},
				{QuestionID: "q2", Level: intPtr(4)},
			},
			Facts: &domain.CandidateFacts{CandidateID: "cand-002"},
		}

		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}

		var resp domain.DecisionResponse
		json.Unmarshal(rr.Body.Bytes(), &resp)

		// Missing mandatory cert is a soft failure: still scored, but
		// never a full FIT.
		if resp.Recommendation == domain.RecommendFit {
			t.Errorf("expected recommendation capped below FIT, got %s", resp.Recommendation)
		}
	})

	t.Run("MissingTenantID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("{}"))
		req.Header.Set("Content-Type", "application/json")
		// No X-Tenant-ID header

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("InvalidJSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBufferString("not-json"))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingCandidateID", func(t *testing.T) {
		reqBody := EvaluateRequest{
			TemplateID: "tpl-cook",
			Answers:    []domain.Answer{{QuestionID: "q1", Level: intPtr(3)}},
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NoAnswers", func(t *testing.T) {
		reqBody := EvaluateRequest{
			CandidateID: "cand-001",
			TemplateID:  "tpl-cook",
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("UnknownTemplate", func(t *testing.T) {
		reqBody := EvaluateRequest{
			CandidateID: "cand-001",
			TemplateID:  "no-such-template",
			Answers:     []domain.Answer{{QuestionID: "q1", Level: intPtr(3)}},
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusUnprocessableEntity {
			t.Errorf("expected status 422, got %d", rr.Code)
		}
	})

	t.Run("ResponseHeaders", func(t *testing.T) {
		reqBody := EvaluateRequest{
			CandidateID: "cand-001",
			TemplateID:  "tpl-cook",
			Answers: []domain.Answer{
				{QuestionID: "q1", Level: intPtr(3)},
			},
		}
		body, _ := json.Marshal(reqBody)
		req := httptest.NewRequest(http.MethodPost, "/evaluate", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID header in response")
		}
		if rr.Header().Get("X-Trace-ID") == "" {
			t.Error("expected X-Trace-ID header in response")
		}
		if rr.Header().Get("Content-Type") != "application/json" {
			t.Error("expected Content-Type: application/json")
		}
	})
}

func TestTemplateEndpoints(t *testing.T) {
	server := createTestServer()

	t.Run("ListTemplates", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/templates", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded template, got %d", resp.Count)
		}
	})

	t.Run("GetTemplate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/templates/tpl-cook", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var tpl domain.AssessmentTemplate
		json.Unmarshal(rr.Body.Bytes(), &tpl)
		if tpl.ID != "tpl-cook" {
			t.Errorf("expected template tpl-cook, got %s", tpl.ID)
		}
	})

	t.Run("GetUnknownTemplate", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/templates/nope", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("CreateActiveTemplateRejectsBadWeights", func(t *testing.T) {
		tpl := testTemplate()
		tpl.ID = "tpl-bad"
		tpl.Competencies[0].Weight = 0.7 // 0.7 + 0.5 != 1.0

		body, _ := json.Marshal(tpl)
		req := httptest.NewRequest(http.MethodPost, "/templates", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad weights, got %d", rr.Code)
		}
	})
}

func TestProfileEndpoints(t *testing.T) {
	server := createTestServer()

	t.Run("ListProfiles", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		var resp struct {
			Count int `json:"count"`
		}
		json.Unmarshal(rr.Body.Bytes(), &resp)
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded profile, got %d", resp.Count)
		}
	})

	t.Run("GetProfile", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/profiles/cook-profile", nil)
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("CreateProfileRejectsBadWeights", func(t *testing.T) {
		p := &domain.EligibilityProfile{
			Key:     "bad-profile",
			Name:    "Bad Profile",
			Weights: domain.FitWeights{Certificates: 0.9, Experience: 0.9},
			Enabled: true,
		}

		body, _ := json.Marshal(p)
		req := httptest.NewRequest(http.MethodPost, "/profiles", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Tenant-ID", "tenant-001")

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400 for bad weights, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoint(t *testing.T) {
	server := createTestServer()

	t.Run("HealthCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}

		var resp map[string]string
		json.Unmarshal(rr.Body.Bytes(), &resp)

		if resp["status"] != "healthy" {
			t.Errorf("expected status 'healthy', got '%s'", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version 'test-v1', got '%s'", resp["version"])
		}
	})

	t.Run("ReadyCheck", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)

		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("TenantMiddlewareExtractsID", func(t *testing.T) {
		var capturedTenantID string

		handler := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capturedTenantID = GetTenantID(r.Context())
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Tenant-ID", "my-tenant-123")

		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedTenantID != "my-tenant-123" {
			t.Errorf("expected tenant ID 'my-tenant-123', got '%s'", capturedTenantID)
		}
	})

	t.Run("TracingMiddlewareSetsRequestID", func(t *testing.T) {
		var capturedRequestID string

		handler := TracingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v, ok := r.Context().Value(RequestIDKey).(string); ok {
				capturedRequestID = v
			}
			w.WriteHeader(http.StatusOK)
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if capturedRequestID == "" {
			t.Error("expected request ID to be set")
		}

		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("expected X-Request-ID response header")
		}
	})

	t.Run("RecoverMiddlewareHandlesPanic", func(t *testing.T) {
		handler := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("test panic")
		}))

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		// Should not panic
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})
}
