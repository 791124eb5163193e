// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/crewgate/crewgate/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveCandidate stores a candidate with tenant isolation.
func (r *SQLRepository) SaveCandidate(ctx context.Context, tenantID string, c *domain.Candidate) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	metadata, _ := json.Marshal(c.Metadata)

	query := `
		INSERT INTO candidates (id, tenant_id, name, locale, created_at, metadata)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			locale = excluded.locale,
			metadata = excluded.metadata
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		c.ID, tenantID, c.Name, c.Locale, c.CreatedAt, string(metadata),
	)
	return err
}

// GetCandidate retrieves a candidate by ID with tenant isolation.
func (r *SQLRepository) GetCandidate(ctx context.Context, tenantID string, candidateID string) (*domain.Candidate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, locale, created_at, metadata
		FROM candidates
		WHERE tenant_id = ? AND id = ?
	`

	var c domain.Candidate
	var metadata string

	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, candidateID).Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Locale, &c.CreatedAt, &metadata,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if metadata != "" {
		json.Unmarshal([]byte(metadata), &c.Metadata)
	}

	return &c, nil
}

// SaveServiceRecord stores one sea-service contract with tenant isolation.
func (r *SQLRepository) SaveServiceRecord(ctx context.Context, tenantID string, rec *domain.ServiceRecord) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO service_records (
			id, tenant_id, candidate_id, vessel_type_key, rank_code,
			vessel_name, sign_on, sign_off
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			vessel_type_key = excluded.vessel_type_key,
			rank_code = excluded.rank_code,
			vessel_name = excluded.vessel_name,
			sign_on = excluded.sign_on,
			sign_off = excluded.sign_off
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, tenantID, rec.CandidateID,
		rec.VesselTypeKey, rec.RankCode, rec.VesselName,
		rec.SignOn, rec.SignOff,
	)
	return err
}

// GetServiceRecords retrieves all sea-service records for a candidate.
func (r *SQLRepository) GetServiceRecords(ctx context.Context, tenantID string, candidateID string) ([]*domain.ServiceRecord, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, candidate_id, vessel_type_key, rank_code,
			   vessel_name, sign_on, sign_off
		FROM service_records
		WHERE tenant_id = ? AND candidate_id = ?
		ORDER BY sign_on
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.ServiceRecord
	for rows.Next() {
		var rec domain.ServiceRecord
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.CandidateID,
			&rec.VesselTypeKey, &rec.RankCode, &rec.VesselName,
			&rec.SignOn, &rec.SignOff,
		); err != nil {
			return nil, err
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveTemplate stores an assessment template version with tenant isolation.
// Saving an existing (id, version) pair updates it in place; superseding
// content means saving a new version.
func (r *SQLRepository) SaveTemplate(ctx context.Context, tenantID string, tpl *domain.AssessmentTemplate) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(tpl)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO assessment_templates (
			id, tenant_id, name, version, state, payload, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			state = excluded.state,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		tpl.ID, tenantID, tpl.Name, tpl.Version, string(tpl.State),
		string(payload), now, now,
	)
	return err
}

// GetTemplate retrieves the latest version of a template with tenant
// isolation. Version strings are opaque, so "latest" means the most
// recently created version row.
func (r *SQLRepository) GetTemplate(ctx context.Context, tenantID string, templateID string) (*domain.AssessmentTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM assessment_templates
		WHERE tenant_id = ? AND id = ?
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, templateID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var tpl domain.AssessmentTemplate
	if err := json.Unmarshal([]byte(payload), &tpl); err != nil {
		return nil, fmt.Errorf("failed to parse template payload: %w", err)
	}
	tpl.TenantID = tenantID

	return &tpl, nil
}

// ListTemplates retrieves the latest version of every template for a tenant.
func (r *SQLRepository) ListTemplates(ctx context.Context, tenantID string) ([]*domain.AssessmentTemplate, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT t.payload
		FROM assessment_templates t
		WHERE t.tenant_id = ?
		  AND t.created_at = (
			SELECT MAX(created_at) FROM assessment_templates
			WHERE tenant_id = t.tenant_id AND id = t.id
		  )
		ORDER BY t.name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []*domain.AssessmentTemplate
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var tpl domain.AssessmentTemplate
		if err := json.Unmarshal([]byte(payload), &tpl); err != nil {
			return nil, fmt.Errorf("failed to parse template payload: %w", err)
		}
		tpl.TenantID = tenantID
		templates = append(templates, &tpl)
	}

	return templates, rows.Err()
}

// SaveProfile stores an eligibility profile version with tenant isolation.
func (r *SQLRepository) SaveProfile(ctx context.Context, tenantID string, p *domain.EligibilityProfile) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	enabled := 0
	if p.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO eligibility_profiles (
			profile_key, tenant_id, name, version, payload, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_key, tenant_id, version) DO UPDATE SET
			name = excluded.name,
			payload = excluded.payload,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		p.Key, tenantID, p.Name, p.Version, string(payload), enabled,
		now, now,
	)
	return err
}

// GetProfile retrieves the latest enabled version of a profile.
func (r *SQLRepository) GetProfile(ctx context.Context, tenantID string, key string) (*domain.EligibilityProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM eligibility_profiles
		WHERE tenant_id = ? AND profile_key = ? AND enabled = 1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, key).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var p domain.EligibilityProfile
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return nil, fmt.Errorf("failed to parse profile payload: %w", err)
	}
	p.TenantID = tenantID

	return &p, nil
}

// ListProfiles retrieves all enabled eligibility profiles for a tenant.
func (r *SQLRepository) ListProfiles(ctx context.Context, tenantID string) ([]*domain.EligibilityProfile, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT p.payload
		FROM eligibility_profiles p
		WHERE p.tenant_id = ? AND p.enabled = 1
		  AND p.created_at = (
			SELECT MAX(created_at) FROM eligibility_profiles
			WHERE tenant_id = p.tenant_id AND profile_key = p.profile_key AND enabled = 1
		  )
		ORDER BY p.name
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*domain.EligibilityProfile
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}

		var p domain.EligibilityProfile
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("failed to parse profile payload: %w", err)
		}
		p.TenantID = tenantID
		profiles = append(profiles, &p)
	}

	return profiles, rows.Err()
}

// DeleteProfile soft-deletes all versions of a profile by setting enabled = 0.
func (r *SQLRepository) DeleteProfile(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE eligibility_profiles
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND profile_key = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, key)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

// SaveDecision stores a decision result. Decisions are immutable:
// this is a plain insert and a duplicate ID is an error.
func (r *SQLRepository) SaveDecision(ctx context.Context, tenantID string, d *domain.DecisionResult) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode decision: %w", err)
	}

	hardBlocked := 0
	if d.HardBlocked {
		hardBlocked = 1
	}
	manualReview := 0
	if d.ManualReviewRequired {
		manualReview = 1
	}

	query := `
		INSERT INTO decisions (
			id, tenant_id, candidate_id, template_id, template_version,
			profile_key, profile_version, overall_score, risk_level,
			recommendation, hard_blocked, manual_review, evaluated_at, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		d.ID, tenantID, d.CandidateID,
		d.TemplateID, d.TemplateVersion,
		d.ProfileKey, d.ProfileVersion,
		d.OverallScore, string(d.RiskLevel), string(d.Recommendation),
		hardBlocked, manualReview, d.EvaluatedAt, string(payload),
	)
	return err
}

// GetDecision retrieves a decision by ID with tenant isolation.
func (r *SQLRepository) GetDecision(ctx context.Context, tenantID string, decisionID string) (*domain.DecisionResult, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT payload FROM decisions
		WHERE tenant_id = ? AND id = ?
	`

	var payload string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, decisionID).Scan(&payload)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var d domain.DecisionResult
	if err := json.Unmarshal([]byte(payload), &d); err != nil {
		return nil, fmt.Errorf("failed to parse decision payload: %w", err)
	}

	return &d, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
