// Package gate provides the eligibility gate: structural requirement
// checks of candidate facts against a versioned eligibility profile.
package gate

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/crewgate/crewgate/internal/domain"
)

// ExperienceGetter returns accumulated whole months in a category
// (vessel type key or rank code) for a candidate. known is false when no
// sea-service history exists at all, which the gate records as
// data_missing rather than zero experience.
type ExperienceGetter func(ctx context.Context, tenantID, candidateID, category string) (months int, known bool, err error)

// Gate holds loaded eligibility profiles with their compiled CEL
// conditions and evaluates candidate facts against them.
type Gate struct {
	mu       sync.RWMutex
	env      *cel.Env
	profiles map[string]*compiledProfile
	expGet   ExperienceGetter
}

type compiledProfile struct {
	Profile  *domain.EligibilityProfile
	Programs map[string]cel.Program
}

// New creates a gate. The experience getter is optional; without one,
// experience not present in the facts is recorded as data_missing.
func New(expGet ExperienceGetter) (*Gate, error) {
	env, err := cel.NewEnv(
		cel.Variable("cert_types", cel.ListType(cel.StringType)),
		cel.Variable("remaining_months", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("experience_months", cel.MapType(cel.StringType, cel.IntType)),
		cel.Variable("prior_scores", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("availability", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Gate{
		env:      env,
		profiles: make(map[string]*compiledProfile),
		expGet:   expGet,
	}, nil
}

// ValidateProfile checks profile integrity without loading it: fit
// weights summing to 1.0, hard-block items carrying block reasons, and
// conditions compiling to bool. Surfaced to content authors at save
// time, before any candidate is scored against a broken profile.
func (g *Gate) ValidateProfile(p *domain.EligibilityProfile) error {
	if p == nil {
		return &domain.ProfileIntegrityError{Key: "", Problems: []string{"profile is nil"}}
	}

	var problems []string

	if p.Key == "" {
		problems = append(problems, "profile key is required")
	}
	if sum := p.Weights.Sum(); math.Abs(sum-1.0) > domain.WeightEpsilon {
		problems = append(problems, fmt.Sprintf("fit weights sum to %.6f, want 1.0", sum))
	}

	for _, item := range p.RequiredItems {
		if item.Type == "" {
			problems = append(problems, "requirement item with empty type")
		}
		if item.MinRemainingMonths < 0 {
			problems = append(problems, fmt.Sprintf("item %s has negative min remaining months", item.Type))
		}
		if item.HardBlock && item.BlockReason == "" {
			problems = append(problems, fmt.Sprintf("hard-block item %s missing block reason", item.Type))
		}
	}

	for _, exp := range p.Experience {
		if exp.Category == "" {
			problems = append(problems, "experience requirement with empty category")
		}
		if exp.MinMonths <= 0 {
			problems = append(problems, fmt.Sprintf("experience requirement %s has non-positive min months", exp.Category))
		}
	}

	for code, threshold := range p.BehaviorThresholds {
		if threshold < 0 || threshold > 1 {
			problems = append(problems, fmt.Sprintf("behavior threshold %s=%.2f outside 0-1", code, threshold))
		}
	}

	for _, cond := range p.Conditions {
		if cond.Expression == "" {
			problems = append(problems, fmt.Sprintf("condition %s has empty expression", cond.Name))
			continue
		}
		if _, err := g.compileCondition(cond); err != nil {
			problems = append(problems, fmt.Sprintf("condition %s: %v", cond.Name, err))
		}
		if cond.HardBlock && cond.FailReason == "" {
			problems = append(problems, fmt.Sprintf("hard-block condition %s missing fail reason", cond.Name))
		}
	}

	if len(problems) > 0 {
		return &domain.ProfileIntegrityError{Key: p.Key, Problems: problems}
	}
	return nil
}

// LoadProfile validates, compiles and loads a profile into the gate.
func (g *Gate) LoadProfile(p *domain.EligibilityProfile) error {
	if err := g.ValidateProfile(p); err != nil {
		return err
	}

	programs := make(map[string]cel.Program, len(p.Conditions))
	for _, cond := range p.Conditions {
		prg, err := g.compileCondition(cond)
		if err != nil {
			return fmt.Errorf("profile %s condition %s: %w", p.Key, cond.Name, err)
		}
		programs[cond.Name] = prg
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles[p.Key] = &compiledProfile{Profile: p, Programs: programs}
	return nil
}

// LoadProfiles loads multiple enabled profiles.
func (g *Gate) LoadProfiles(profiles []*domain.EligibilityProfile) error {
	for _, p := range profiles {
		if p.Enabled {
			if err := g.LoadProfile(p); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadProfiles clears all loaded profiles and loads new ones.
// This enables hot-reloading of profiles from the database.
func (g *Gate) ReloadProfiles(profiles []*domain.EligibilityProfile) error {
	loaded := make(map[string]*compiledProfile)
	for _, p := range profiles {
		if !p.Enabled {
			continue
		}
		if err := g.ValidateProfile(p); err != nil {
			return err
		}
		programs := make(map[string]cel.Program, len(p.Conditions))
		for _, cond := range p.Conditions {
			prg, err := g.compileCondition(cond)
			if err != nil {
				return fmt.Errorf("profile %s condition %s: %w", p.Key, cond.Name, err)
			}
			programs[cond.Name] = prg
		}
		loaded[p.Key] = &compiledProfile{Profile: p, Programs: programs}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles = loaded
	return nil
}

// GetProfile returns a loaded profile by key.
func (g *Gate) GetProfile(key string) (*domain.EligibilityProfile, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cp, ok := g.profiles[key]
	if !ok {
		return nil, false
	}
	return cp.Profile, true
}

// GetLoadedProfiles returns the currently loaded profiles.
func (g *Gate) GetLoadedProfiles() []*domain.EligibilityProfile {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*domain.EligibilityProfile, 0, len(g.profiles))
	for _, cp := range g.profiles {
		out = append(out, cp.Profile)
	}
	return out
}

// ProfileCount returns the number of loaded profiles.
func (g *Gate) ProfileCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.profiles)
}

// Close cleans up the gate.
func (g *Gate) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.profiles = make(map[string]*compiledProfile)
	return nil
}

// Result is the gate verdict for one candidate against one profile.
type Result struct {
	ProfileKey     string
	ProfileVersion string

	// Items holds one entry per requirement checked, passed or failed.
	Items []domain.GateItemResult

	// Passed is false when any mandatory requirement failed.
	Passed bool

	// HardBlocked short-circuits the recommendation: the candidate is
	// categorically ineligible regardless of any score.
	HardBlocked  bool
	BlockReasons []string

	// Fit fractions, each 0.0-1.0.
	CertificateFit  float64
	ExperienceFit   float64
	AvailabilityFit float64
}

// Evaluate checks candidate facts against a loaded profile at an
// evaluation date. Pure function of profile + facts + date apart from
// the optional experience lookup; behavior thresholds are merged later
// by the decision composer to avoid a circular dependency on scoring.
func (g *Gate) Evaluate(ctx context.Context, tenantID, profileKey string, facts *domain.CandidateFacts, evalDate time.Time) (*Result, error) {
	g.mu.RLock()
	cp, ok := g.profiles[profileKey]
	g.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("profile %s not loaded", profileKey)
	}
	p := cp.Profile

	result := &Result{
		ProfileKey:     p.Key,
		ProfileVersion: p.Version,
		Passed:         true,
	}

	g.checkCertificates(p, facts, evalDate, result)
	g.checkExperience(ctx, tenantID, p, facts, result)
	g.checkConditions(cp, facts, evalDate, result)

	result.AvailabilityFit = 1.0
	if facts.Availability != nil {
		result.AvailabilityFit = clamp01(*facts.Availability)
	}

	return result, nil
}

func (g *Gate) checkCertificates(p *domain.EligibilityProfile, facts *domain.CandidateFacts, evalDate time.Time, result *Result) {
	if len(p.RequiredItems) == 0 {
		result.CertificateFit = 1.0
		return
	}

	passed := 0
	for _, item := range p.RequiredItems {
		ir := domain.GateItemResult{
			Item:      item.Type,
			Mandatory: item.Mandatory,
			HardBlock: item.HardBlock,
			Required:  strconv.Itoa(item.MinRemainingMonths) + "mo",
		}

		cert, held := facts.Find(item.Type)
		switch {
		case !held:
			ir.Passed = false
			ir.Reason = domain.GateReasonDataMissing
			ir.Actual = "not_held"
		default:
			remaining := domain.MonthsBetween(evalDate, cert.ExpiresAt)
			ir.Actual = strconv.Itoa(remaining) + "mo"
			if remaining >= item.MinRemainingMonths {
				ir.Passed = true
			} else if remaining < 0 {
				ir.Reason = domain.GateReasonExpired
			} else {
				ir.Reason = domain.GateReasonInsufficientValidity
			}
		}

		if ir.Passed {
			passed++
		} else {
			if item.Mandatory || item.HardBlock {
				result.Passed = false
			}
			if item.HardBlock {
				result.HardBlocked = true
				result.BlockReasons = append(result.BlockReasons, item.BlockReason)
			}
		}

		result.Items = append(result.Items, ir)
	}

	result.CertificateFit = float64(passed) / float64(len(p.RequiredItems))
}

func (g *Gate) checkExperience(ctx context.Context, tenantID string, p *domain.EligibilityProfile, facts *domain.CandidateFacts, result *Result) {
	if len(p.Experience) == 0 {
		result.ExperienceFit = 1.0
		return
	}

	var fitSum float64
	for _, req := range p.Experience {
		ir := domain.GateItemResult{
			Item:      "experience:" + req.Category,
			Mandatory: req.Mandatory,
			Required:  strconv.Itoa(req.MinMonths) + "mo",
		}

		months, known := facts.ExperienceMonths[req.Category]
		if !known && g.expGet != nil {
			m, k, err := g.expGet(ctx, tenantID, facts.CandidateID, req.Category)
			if err == nil && k {
				months, known = m, true
			}
		}

		switch {
		case !known:
			ir.Passed = false
			ir.Reason = domain.GateReasonDataMissing
			ir.Actual = "unknown"
			// Unknown experience contributes nothing to the fit but is
			// reported as missing data, not as a shortfall.
		default:
			ir.Actual = strconv.Itoa(months) + "mo"
			fit := math.Min(1.0, float64(months)/float64(req.MinMonths))
			fitSum += fit
			if months >= req.MinMonths {
				ir.Passed = true
			} else {
				ir.Reason = domain.GateReasonInsufficientMonths
			}
		}

		if !ir.Passed && req.Mandatory {
			result.Passed = false
		}

		result.Items = append(result.Items, ir)
	}

	result.ExperienceFit = fitSum / float64(len(p.Experience))
}

func (g *Gate) checkConditions(cp *compiledProfile, facts *domain.CandidateFacts, evalDate time.Time, result *Result) {
	if len(cp.Profile.Conditions) == 0 {
		return
	}

	activation := buildActivation(facts, evalDate)

	for _, cond := range cp.Profile.Conditions {
		ir := domain.GateItemResult{
			Item:      "condition:" + cond.Name,
			Mandatory: true,
			HardBlock: cond.HardBlock,
		}

		prg := cp.Programs[cond.Name]
		out, _, err := prg.Eval(activation)
		if err != nil {
			ir.Passed = false
			ir.Reason = domain.GateReasonDataMissing
			ir.Actual = fmt.Sprintf("eval error: %v", err)
		} else if b, ok := out.(types.Bool); ok && bool(b) {
			ir.Passed = true
		} else {
			ir.Passed = false
			ir.Reason = cond.FailReason
		}

		if !ir.Passed {
			result.Passed = false
			if cond.HardBlock {
				result.HardBlocked = true
				result.BlockReasons = append(result.BlockReasons, cond.FailReason)
			}
		}

		result.Items = append(result.Items, ir)
	}
}

func (g *Gate) compileCondition(cond domain.ProfileCondition) (cel.Program, error) {
	ast, issues := g.env.Compile(cond.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile condition: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("condition must return bool, got %s", ast.OutputType())
	}
	return g.env.Program(ast)
}

// buildActivation flattens candidate facts into CEL variables.
func buildActivation(facts *domain.CandidateFacts, evalDate time.Time) map[string]any {
	certTypes := make([]string, 0, len(facts.Certificates))
	remaining := make(map[string]any, len(facts.Certificates))
	for _, c := range facts.Certificates {
		certTypes = append(certTypes, c.Type)
		remaining[c.Type] = int64(domain.MonthsBetween(evalDate, c.ExpiresAt))
	}

	experience := make(map[string]any, len(facts.ExperienceMonths))
	for k, v := range facts.ExperienceMonths {
		experience[k] = int64(v)
	}

	prior := make(map[string]any, len(facts.PriorScores))
	for k, v := range facts.PriorScores {
		prior[k] = v
	}

	availability := 1.0
	if facts.Availability != nil {
		availability = *facts.Availability
	}

	return map[string]any{
		"cert_types":        certTypes,
		"remaining_months":  remaining,
		"experience_months": experience,
		"prior_scores":      prior,
		"availability":      availability,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
