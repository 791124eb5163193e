// Package domain defines the core interfaces and types for Crewgate.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Candidate operations
	SaveCandidate(ctx context.Context, tenantID string, c *Candidate) error
	GetCandidate(ctx context.Context, tenantID string, candidateID string) (*Candidate, error)

	// Sea service history operations
	SaveServiceRecord(ctx context.Context, tenantID string, rec *ServiceRecord) error
	GetServiceRecords(ctx context.Context, tenantID string, candidateID string) ([]*ServiceRecord, error)

	// Assessment template operations
	SaveTemplate(ctx context.Context, tenantID string, tpl *AssessmentTemplate) error
	GetTemplate(ctx context.Context, tenantID string, templateID string) (*AssessmentTemplate, error)
	ListTemplates(ctx context.Context, tenantID string) ([]*AssessmentTemplate, error)

	// Eligibility profile operations
	SaveProfile(ctx context.Context, tenantID string, p *EligibilityProfile) error
	GetProfile(ctx context.Context, tenantID string, key string) (*EligibilityProfile, error)
	ListProfiles(ctx context.Context, tenantID string) ([]*EligibilityProfile, error)
	DeleteProfile(ctx context.Context, tenantID string, key string) error

	// Decision results: insert-only, decisions are immutable audit records
	SaveDecision(ctx context.Context, tenantID string, d *DecisionResult) error
	GetDecision(ctx context.Context, tenantID string, decisionID string) (*DecisionResult, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
