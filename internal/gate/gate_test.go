package gate

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

var evalDate = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

func baseProfile() *domain.EligibilityProfile {
	return &domain.EligibilityProfile{
		Key:     "2nd-officer-tanker",
		Name:    "Second Officer, Tanker",
		Version: "1",
		RequiredItems: []domain.RequirementItem{
			{Type: "STCW_BASIC", MinRemainingMonths: 6, Mandatory: true},
		},
		Weights: domain.FitWeights{Certificates: 0.4, Experience: 0.3, Behavior: 0.2, Availability: 0.1},
		Enabled: true,
	}
}

func newGate(t *testing.T, expGet ExperienceGetter) *Gate {
	t.Helper()
	g, err := New(expGet)
	if err != nil {
		t.Fatalf("failed to create gate: %v", err)
	}
	return g
}

func certFacts(certType string, expiresAt time.Time) *domain.CandidateFacts {
	return &domain.CandidateFacts{
		CandidateID: "cand-001",
		Certificates: []domain.Certificate{
			{Type: certType, ExpiresAt: expiresAt},
		},
	}
}

func TestGateCreation(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	if g.ProfileCount() != 0 {
		t.Errorf("expected 0 profiles, got %d", g.ProfileCount())
	}
}

func TestLoadProfile(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	if err := g.LoadProfile(baseProfile()); err != nil {
		t.Fatalf("failed to load profile: %v", err)
	}
	if g.ProfileCount() != 1 {
		t.Errorf("expected 1 profile, got %d", g.ProfileCount())
	}
}

func TestValidateProfileWeights(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.Weights = domain.FitWeights{Certificates: 0.9, Experience: 0.9}

	err := g.ValidateProfile(p)
	if err == nil {
		t.Fatal("expected error for fit weights not summing to 1.0")
	}
	var integrityErr *domain.ProfileIntegrityError
	if !errors.As(err, &integrityErr) {
		t.Fatalf("expected ProfileIntegrityError, got %T", err)
	}
}

func TestValidateHardBlockRequiresReason(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = append(p.RequiredItems, domain.RequirementItem{
		Type:      "TANKER_ENDORSEMENT",
		HardBlock: true,
		// no BlockReason
	})

	if err := g.ValidateProfile(p); err == nil {
		t.Error("expected error for hard-block item without block reason")
	}
}

func TestValidateBadCondition(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.Conditions = []domain.ProfileCondition{
		{Name: "broken", Expression: "this is !! not CEL", FailReason: "x"},
	}
	if err := g.ValidateProfile(p); err == nil {
		t.Error("expected error for uncompilable condition")
	}

	p.Conditions = []domain.ProfileCondition{
		{Name: "not-bool", Expression: "availability", FailReason: "x"},
	}
	if err := g.ValidateProfile(p); err == nil {
		t.Error("expected error for non-bool condition")
	}
}

func TestCertificateSufficientValidity(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()
	g.LoadProfile(baseProfile())

	result, err := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(1, 0, 0)), evalDate)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Passed {
		t.Error("expected pass with 12 months remaining vs 6 required")
	}
	if result.CertificateFit != 1.0 {
		t.Errorf("expected certificate fit 1.0, got %.2f", result.CertificateFit)
	}
}

func TestCertificateWholeMonthBoundary(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()
	g.LoadProfile(baseProfile())

	// One day short of 6 whole months: 5 months remaining, fails.
	result, _ := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(0, 6, -1)), evalDate)
	if result.Passed {
		t.Error("5 whole months must not satisfy a 6-month requirement")
	}
	if result.Items[0].Reason != domain.GateReasonInsufficientValidity {
		t.Errorf("expected insufficient_validity, got %s", result.Items[0].Reason)
	}

	// Exactly 6 months passes.
	result, _ = g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(0, 6, 0)), evalDate)
	if !result.Passed {
		t.Error("exactly 6 whole months must satisfy a 6-month requirement")
	}
}

func TestCertificateExpiredVsMissing(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()
	g.LoadProfile(baseProfile())

	// Expired: held but past its expiry date.
	result, _ := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(0, -2, 0)), evalDate)
	if result.Items[0].Reason != domain.GateReasonExpired {
		t.Errorf("expected expired, got %s", result.Items[0].Reason)
	}

	// Not held at all: data_missing, a different failure.
	result, _ = g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		&domain.CandidateFacts{CandidateID: "cand-001"}, evalDate)
	if result.Items[0].Reason != domain.GateReasonDataMissing {
		t.Errorf("expected data_missing, got %s", result.Items[0].Reason)
	}
	if result.Passed {
		t.Error("missing mandatory certificate must fail the gate")
	}
}

func TestHardBlockCertificate(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = append(p.RequiredItems, domain.RequirementItem{
		Type:        "TANKER_ENDORSEMENT",
		Mandatory:   true,
		HardBlock:   true,
		BlockReason: "missing_tanker_endorsement",
	})
	g.LoadProfile(p)

	result, err := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(1, 0, 0)), evalDate)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.HardBlocked {
		t.Error("expected hard block for missing endorsement")
	}
	if len(result.BlockReasons) != 1 || result.BlockReasons[0] != "missing_tanker_endorsement" {
		t.Errorf("expected block reason missing_tanker_endorsement, got %v", result.BlockReasons)
	}
	// All items are still evaluated and reported under a hard block.
	if len(result.Items) != 2 {
		t.Errorf("expected both items evaluated, got %d", len(result.Items))
	}
	if result.CertificateFit != 0.5 {
		t.Errorf("expected certificate fit 0.5, got %.2f", result.CertificateFit)
	}
}

func TestExperienceProportionalFit(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = nil
	p.Experience = []domain.ExperienceRequirement{
		{Category: "tanker", MinMonths: 12, Mandatory: true},
	}
	g.LoadProfile(p)

	facts := &domain.CandidateFacts{
		CandidateID:      "cand-001",
		ExperienceMonths: map[string]int{"tanker": 9},
	}

	result, err := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker", facts, evalDate)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if result.Passed {
		t.Error("9 of 12 required months must fail a mandatory requirement")
	}
	if math.Abs(result.ExperienceFit-0.75) > 0.001 {
		t.Errorf("expected experience fit 0.75, got %.3f", result.ExperienceFit)
	}
	if result.Items[0].Reason != domain.GateReasonInsufficientMonths {
		t.Errorf("expected insufficient_months, got %s", result.Items[0].Reason)
	}
}

func TestExperienceFromGetter(t *testing.T) {
	getter := func(ctx context.Context, tenantID, candidateID, category string) (int, bool, error) {
		if category == "tanker" {
			return 18, true, nil
		}
		return 0, false, nil
	}

	g := newGate(t, getter)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = nil
	p.Experience = []domain.ExperienceRequirement{
		{Category: "tanker", MinMonths: 12, Mandatory: true},
	}
	g.LoadProfile(p)

	// Facts carry no experience; the getter supplies it.
	result, err := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		&domain.CandidateFacts{CandidateID: "cand-001"}, evalDate)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}

	if !result.Passed {
		t.Error("expected pass with 18 months from getter")
	}
	if result.ExperienceFit != 1.0 {
		t.Errorf("expected experience fit 1.0, got %.2f", result.ExperienceFit)
	}
}

func TestExperienceUnknownIsDataMissing(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = nil
	p.Experience = []domain.ExperienceRequirement{
		{Category: "passenger", MinMonths: 6, Mandatory: true},
	}
	g.LoadProfile(p)

	result, _ := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		&domain.CandidateFacts{CandidateID: "cand-001"}, evalDate)

	if result.Items[0].Reason != domain.GateReasonDataMissing {
		t.Errorf("expected data_missing for unknown experience, got %s", result.Items[0].Reason)
	}
	if result.Items[0].Actual != "unknown" {
		t.Errorf("expected actual 'unknown', got %s", result.Items[0].Actual)
	}
	if result.Passed {
		t.Error("unknown mandatory experience must fail the gate")
	}
}

func TestConditions(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = nil
	p.Conditions = []domain.ProfileCondition{
		{
			Name:       "recent-medical",
			Expression: `"MEDICAL" in cert_types && remaining_months["MEDICAL"] >= 3`,
			FailReason: "medical_certificate_short",
		},
	}
	g.LoadProfile(p)

	// Medical valid for a year: condition passes.
	result, err := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("MEDICAL", evalDate.AddDate(1, 0, 0)), evalDate)
	if err != nil {
		t.Fatalf("evaluation failed: %v", err)
	}
	if !result.Passed {
		t.Errorf("expected condition pass, items: %+v", result.Items)
	}

	// Medical expiring next month: condition fails with its reason.
	result, _ = g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("MEDICAL", evalDate.AddDate(0, 1, 0)), evalDate)
	if result.Passed {
		t.Error("expected condition failure")
	}
	if result.Items[0].Reason != "medical_certificate_short" {
		t.Errorf("expected fail reason, got %s", result.Items[0].Reason)
	}
}

func TestHardBlockCondition(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	p := baseProfile()
	p.RequiredItems = nil
	p.Conditions = []domain.ProfileCondition{
		{
			Name:       "availability-floor",
			Expression: "availability >= 0.5",
			FailReason: "candidate_unavailable",
			HardBlock:  true,
		},
	}
	g.LoadProfile(p)

	avail := 0.2
	result, _ := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		&domain.CandidateFacts{CandidateID: "cand-001", Availability: &avail}, evalDate)

	if !result.HardBlocked {
		t.Error("expected hard block from condition")
	}
	if len(result.BlockReasons) != 1 || result.BlockReasons[0] != "candidate_unavailable" {
		t.Errorf("expected candidate_unavailable, got %v", result.BlockReasons)
	}
}

func TestAvailabilityDefaultsToFull(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()
	g.LoadProfile(baseProfile())

	// Nil availability means no signal, not zero availability.
	result, _ := g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		certFacts("STCW_BASIC", evalDate.AddDate(1, 0, 0)), evalDate)
	if result.AvailabilityFit != 1.0 {
		t.Errorf("expected availability fit 1.0 for nil availability, got %.2f", result.AvailabilityFit)
	}

	avail := 0.6
	result, _ = g.Evaluate(context.Background(), "tenant-001", "2nd-officer-tanker",
		&domain.CandidateFacts{CandidateID: "cand-001", Availability: &avail}, evalDate)
	if result.AvailabilityFit != 0.6 {
		t.Errorf("expected availability fit 0.6, got %.2f", result.AvailabilityFit)
	}
}

func TestEvaluateProfileNotLoaded(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	_, err := g.Evaluate(context.Background(), "tenant-001", "no-such",
		&domain.CandidateFacts{CandidateID: "cand-001"}, evalDate)
	if err == nil {
		t.Error("expected error for unloaded profile")
	}
}

func TestReloadProfiles(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()
	g.LoadProfile(baseProfile())

	replacement := baseProfile()
	replacement.Key = "chief-cook"

	if err := g.ReloadProfiles([]*domain.EligibilityProfile{replacement}); err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if _, ok := g.GetProfile("2nd-officer-tanker"); ok {
		t.Error("expected old profile dropped on reload")
	}
	if _, ok := g.GetProfile("chief-cook"); !ok {
		t.Error("expected new profile loaded")
	}
}

func TestDisabledProfilesSkipped(t *testing.T) {
	g := newGate(t, nil)
	defer g.Close()

	disabled := baseProfile()
	disabled.Enabled = false

	if err := g.LoadProfiles([]*domain.EligibilityProfile{disabled}); err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if g.ProfileCount() != 0 {
		t.Errorf("disabled profile must not load, got %d", g.ProfileCount())
	}
}
