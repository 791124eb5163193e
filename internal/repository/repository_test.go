package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "crewgate-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func TestSQLiteRepository(t *testing.T) {
	repo := newTestRepo(t)

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("Ping", func(t *testing.T) {
		if err := repo.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("SaveAndGetCandidate", func(t *testing.T) {
		c := &domain.Candidate{
			ID:        "cand-001",
			Name:      "Ivan Petrov",
			Locale:    "ru",
			CreatedAt: time.Now().UTC(),
			Metadata:  map[string]any{"source": "agency"},
		}

		if err := repo.SaveCandidate(ctx, tenantID, c); err != nil {
			t.Fatalf("SaveCandidate failed: %v", err)
		}

		retrieved, err := repo.GetCandidate(ctx, tenantID, c.ID)
		if err != nil {
			t.Fatalf("GetCandidate failed: %v", err)
		}

		if retrieved.ID != c.ID {
			t.Errorf("expected ID %s, got %s", c.ID, retrieved.ID)
		}
		if retrieved.Locale != "ru" {
			t.Errorf("expected locale ru, got %s", retrieved.Locale)
		}
		if retrieved.TenantID != tenantID {
			t.Errorf("expected TenantID %s, got %s", tenantID, retrieved.TenantID)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_, err := repo.GetCandidate(ctx, "tenant-002", "cand-001")
		if err != ErrNotFound {
			t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := repo.SaveCandidate(ctx, "", &domain.Candidate{ID: "cand-test"})
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = repo.GetCandidate(ctx, "", "cand-001")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("ServiceRecords", func(t *testing.T) {
		rec := &domain.ServiceRecord{
			ID:            "rec-001",
			CandidateID:   "cand-001",
			VesselTypeKey: "tanker",
			RankCode:      "2nd_officer",
			VesselName:    "MT Aurora",
			SignOn:        time.Date(2024, time.January, 5, 0, 0, 0, 0, time.UTC),
			SignOff:       time.Date(2024, time.July, 5, 0, 0, 0, 0, time.UTC),
		}

		if err := repo.SaveServiceRecord(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveServiceRecord failed: %v", err)
		}

		recs, err := repo.GetServiceRecords(ctx, tenantID, "cand-001")
		if err != nil {
			t.Fatalf("GetServiceRecords failed: %v", err)
		}
		if len(recs) != 1 {
			t.Fatalf("expected 1 record, got %d", len(recs))
		}
		if recs[0].VesselTypeKey != "tanker" {
			t.Errorf("expected vessel type tanker, got %s", recs[0].VesselTypeKey)
		}

		// Upsert on same ID replaces, not duplicates
		rec.VesselName = "MT Aurora II"
		if err := repo.SaveServiceRecord(ctx, tenantID, rec); err != nil {
			t.Fatalf("SaveServiceRecord upsert failed: %v", err)
		}
		recs, _ = repo.GetServiceRecords(ctx, tenantID, "cand-001")
		if len(recs) != 1 {
			t.Errorf("expected 1 record after upsert, got %d", len(recs))
		}
		if recs[0].VesselName != "MT Aurora II" {
			t.Errorf("expected updated vessel name, got %s", recs[0].VesselName)
		}
	})
}

func TestTemplateVersioning(t *testing.T) {
	repo := newTestRepo(t)

	ctx := context.Background()
	tenantID := "tenant-001"

	tpl := &domain.AssessmentTemplate{
		ID:      "tpl-waiter",
		Name:    "Waiter Interview",
		Version: "1",
		Scale:   domain.RubricScale{Min: 0, Max: 5},
		Competencies: []domain.CompetencyDefinition{
			{Code: "integrity", Name: domain.LocaleText{"en": "Integrity"}, Weight: 1.0},
		},
		State: domain.TemplateDraft,
	}

	if err := repo.SaveTemplate(ctx, tenantID, tpl); err != nil {
		t.Fatalf("SaveTemplate failed: %v", err)
	}

	// Save a second version with a different scale
	tpl2 := *tpl
	tpl2.Version = "2"
	tpl2.Scale = domain.RubricScale{Min: 1, Max: 5}
	if err := repo.SaveTemplate(ctx, tenantID, &tpl2); err != nil {
		t.Fatalf("SaveTemplate v2 failed: %v", err)
	}

	retrieved, err := repo.GetTemplate(ctx, tenantID, "tpl-waiter")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if retrieved.Version != "2" {
		t.Errorf("expected latest version 2, got %s", retrieved.Version)
	}
	if retrieved.Scale.Min != 1 {
		t.Errorf("expected scale min 1 from v2, got %d", retrieved.Scale.Min)
	}

	templates, err := repo.ListTemplates(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 1 {
		t.Errorf("expected 1 template (latest version only), got %d", len(templates))
	}

	if _, err := repo.GetTemplate(ctx, tenantID, "no-such-template"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got: %v", err)
	}

	// Version strings sort lexicographically ("9" > "10"), so latest-version
	// resolution must not depend on string ordering. Push past single digits
	// and check both the point read and the list.
	for _, v := range []string{"3", "4", "5", "6", "7", "8", "9", "10"} {
		next := *tpl
		next.Version = v
		if err := repo.SaveTemplate(ctx, tenantID, &next); err != nil {
			t.Fatalf("SaveTemplate v%s failed: %v", v, err)
		}
	}

	retrieved, err = repo.GetTemplate(ctx, tenantID, "tpl-waiter")
	if err != nil {
		t.Fatalf("GetTemplate failed: %v", err)
	}
	if retrieved.Version != "10" {
		t.Errorf("expected latest version 10, got %s", retrieved.Version)
	}

	templates, err = repo.ListTemplates(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListTemplates failed: %v", err)
	}
	if len(templates) != 1 {
		t.Fatalf("expected 1 template (latest version only), got %d", len(templates))
	}
	if templates[0].Version != "10" {
		t.Errorf("expected listed version 10, got %s", templates[0].Version)
	}
}

func TestProfileLifecycle(t *testing.T) {
	repo := newTestRepo(t)

	ctx := context.Background()
	tenantID := "tenant-001"

	p := &domain.EligibilityProfile{
		Key:           "tanker-2nd-officer",
		Name:          "Tanker 2nd Officer",
		Version:       "1",
		VesselTypeKey: "tanker",
		RankCode:      "2nd_officer",
		RequiredItems: []domain.RequirementItem{
			{Type: "TANKER_ENDORSEMENT", MinRemainingMonths: 6, Mandatory: true, HardBlock: true, BlockReason: "missing_tanker_endorsement"},
		},
		Weights: domain.FitWeights{Certificates: 0.4, Experience: 0.3, Behavior: 0.2, Availability: 0.1},
		Enabled: true,
	}

	if err := repo.SaveProfile(ctx, tenantID, p); err != nil {
		t.Fatalf("SaveProfile failed: %v", err)
	}

	retrieved, err := repo.GetProfile(ctx, tenantID, p.Key)
	if err != nil {
		t.Fatalf("GetProfile failed: %v", err)
	}
	if len(retrieved.RequiredItems) != 1 {
		t.Fatalf("expected 1 required item, got %d", len(retrieved.RequiredItems))
	}
	if retrieved.RequiredItems[0].BlockReason != "missing_tanker_endorsement" {
		t.Errorf("unexpected block reason: %s", retrieved.RequiredItems[0].BlockReason)
	}

	profiles, err := repo.ListProfiles(ctx, tenantID)
	if err != nil {
		t.Fatalf("ListProfiles failed: %v", err)
	}
	if len(profiles) != 1 {
		t.Errorf("expected 1 profile, got %d", len(profiles))
	}

	if err := repo.DeleteProfile(ctx, tenantID, p.Key); err != nil {
		t.Fatalf("DeleteProfile failed: %v", err)
	}
	if _, err := repo.GetProfile(ctx, tenantID, p.Key); err != ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got: %v", err)
	}
	if err := repo.DeleteProfile(ctx, tenantID, "no-such-profile"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound for unknown profile, got: %v", err)
	}
}

func TestDecisionImmutable(t *testing.T) {
	repo := newTestRepo(t)

	ctx := context.Background()
	tenantID := "tenant-001"

	d := &domain.DecisionResult{
		ID:              "dec-001",
		TenantID:        tenantID,
		CandidateID:     "cand-001",
		TemplateID:      "tpl-waiter",
		TemplateVersion: "1",
		OverallScore:    82.5,
		CompetencyScores: map[string]float64{
			"integrity": 4.5,
		},
		RiskLevel:      domain.RiskLow,
		Recommendation: domain.RecommendFit,
		GatePassed:     true,
		EvaluatedAt:    time.Now().UTC(),
	}

	if err := repo.SaveDecision(ctx, tenantID, d); err != nil {
		t.Fatalf("SaveDecision failed: %v", err)
	}

	retrieved, err := repo.GetDecision(ctx, tenantID, d.ID)
	if err != nil {
		t.Fatalf("GetDecision failed: %v", err)
	}
	if retrieved.OverallScore != 82.5 {
		t.Errorf("expected score 82.5, got %.2f", retrieved.OverallScore)
	}
	if retrieved.Recommendation != domain.RecommendFit {
		t.Errorf("expected FIT, got %s", retrieved.Recommendation)
	}
	if retrieved.CompetencyScores["integrity"] != 4.5 {
		t.Errorf("expected integrity 4.5, got %.2f", retrieved.CompetencyScores["integrity"])
	}

	// A second insert with the same ID must fail: decisions never mutate.
	if err := repo.SaveDecision(ctx, tenantID, d); err == nil {
		t.Error("expected error on duplicate decision ID")
	}

	_, err = repo.GetDecision(ctx, "tenant-002", d.ID)
	if err != ErrNotFound {
		t.Errorf("expected ErrNotFound for different tenant, got: %v", err)
	}
}
