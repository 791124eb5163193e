// Package seaservice accumulates sea-time from service records.
package seaservice

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

// cacheTTL bounds staleness of accumulated months. Records change
// rarely (a sign-off per contract), so a short TTL is enough.
const cacheTTL = 5 * time.Minute

// Service calculates accumulated service months for candidates.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
	db    *sql.DB // Direct DB access for custom queries
}

// NewService creates a new sea-service calculator.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// GetExperienceMonths returns whole months a candidate served in a
// category. A category is a vessel type key, a rank code, or "total".
// This is the ExperienceGetter signature expected by the eligibility
// gate; known is false when the candidate has no records at all, so
// the gate can distinguish missing data from zero experience.
func (s *Service) GetExperienceMonths(ctx context.Context, tenantID, candidateID, category string) (int, bool, error) {
	if tenantID == "" || candidateID == "" {
		return 0, false, fmt.Errorf("tenantID and candidateID are required")
	}

	cacheKey := "seaservice:" + candidateID + ":" + category
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, tenantID, cacheKey); err == nil && raw != nil {
			if months, err := strconv.Atoi(string(raw)); err == nil {
				return months, true, nil
			}
		}
	}

	var recs []*domain.ServiceRecord
	var err error
	switch {
	case s.repo != nil:
		recs, err = s.repo.GetServiceRecords(ctx, tenantID, candidateID)
	case s.db != nil:
		recs, err = s.recordsFromDB(ctx, tenantID, candidateID)
	default:
		return 0, false, fmt.Errorf("no data source available")
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to get service records: %w", err)
	}
	if len(recs) == 0 {
		return 0, false, nil
	}

	months := accumulate(recs, category)
	if s.cache != nil {
		_ = s.cache.Set(ctx, tenantID, cacheKey, []byte(strconv.Itoa(months)), cacheTTL)
	}
	return months, true, nil
}

// accumulate sums whole months across records matching the category.
// Partial months are truncated per record, never rounded up.
func accumulate(recs []*domain.ServiceRecord, category string) int {
	total := 0
	for _, rec := range recs {
		if category != "total" && rec.VesselTypeKey != category && rec.RankCode != category {
			continue
		}
		if rec.SignOff.Before(rec.SignOn) {
			continue
		}
		total += domain.MonthsBetween(rec.SignOn, rec.SignOff)
	}
	return total
}

// recordsFromDB queries the database directly for service records.
func (s *Service) recordsFromDB(ctx context.Context, tenantID, candidateID string) ([]*domain.ServiceRecord, error) {
	query := `
		SELECT id, tenant_id, candidate_id, vessel_type_key, rank_code, vessel_name, sign_on, sign_off
		FROM service_records
		WHERE tenant_id = ? AND candidate_id = ?
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID, candidateID)
	if err != nil {
		return nil, fmt.Errorf("failed to query service records: %w", err)
	}
	defer rows.Close()

	var recs []*domain.ServiceRecord
	for rows.Next() {
		rec := &domain.ServiceRecord{}
		if err := rows.Scan(&rec.ID, &rec.TenantID, &rec.CandidateID,
			&rec.VesselTypeKey, &rec.RankCode, &rec.VesselName,
			&rec.SignOn, &rec.SignOff); err != nil {
			return nil, fmt.Errorf("failed to scan service record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// GetExperienceGetter returns an ExperienceGetter function for the
// eligibility gate.
func (s *Service) GetExperienceGetter() func(ctx context.Context, tenantID, candidateID, category string) (int, bool, error) {
	return s.GetExperienceMonths
}
