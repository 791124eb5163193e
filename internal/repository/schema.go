package repository

// Schema definitions for the Crewgate database.
// Compatible with both SQLite and PostgreSQL.

const schemaCandidates = `
CREATE TABLE IF NOT EXISTS candidates (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT,
    locale TEXT,
    created_at TIMESTAMP NOT NULL,
    metadata TEXT,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_candidates_tenant ON candidates(tenant_id);
`

const schemaServiceRecords = `
CREATE TABLE IF NOT EXISTS service_records (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    vessel_type_key TEXT NOT NULL,
    rank_code TEXT NOT NULL,
    vessel_name TEXT,
    sign_on TIMESTAMP NOT NULL,
    sign_off TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_service_records_tenant ON service_records(tenant_id);
CREATE INDEX IF NOT EXISTS idx_service_records_candidate ON service_records(tenant_id, candidate_id);
`

// Templates and profiles keep their structured content (competencies,
// questions, bands, requirements) in a JSON payload column; the engine
// always works on the parsed form, never on individual columns.
const schemaTemplates = `
CREATE TABLE IF NOT EXISTS assessment_templates (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    state TEXT NOT NULL,
    payload TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_templates_tenant ON assessment_templates(tenant_id);
CREATE INDEX IF NOT EXISTS idx_templates_state ON assessment_templates(tenant_id, state);
`

const schemaProfiles = `
CREATE TABLE IF NOT EXISTS eligibility_profiles (
    profile_key TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    version TEXT NOT NULL,
    payload TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (profile_key, tenant_id, version)
);

CREATE INDEX IF NOT EXISTS idx_profiles_tenant ON eligibility_profiles(tenant_id);
CREATE INDEX IF NOT EXISTS idx_profiles_enabled ON eligibility_profiles(tenant_id, enabled);
`

// Decisions are insert-only: no update or delete statements exist for
// this table anywhere in the codebase.
const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    candidate_id TEXT NOT NULL,
    template_id TEXT,
    template_version TEXT,
    profile_key TEXT,
    profile_version TEXT,
    overall_score REAL NOT NULL,
    risk_level TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    hard_blocked INTEGER NOT NULL DEFAULT 0,
    manual_review INTEGER NOT NULL DEFAULT 0,
    evaluated_at TIMESTAMP NOT NULL,
    payload TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_tenant ON decisions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_decisions_candidate ON decisions(tenant_id, candidate_id);
CREATE INDEX IF NOT EXISTS idx_decisions_evaluated ON decisions(tenant_id, evaluated_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaCandidates,
		schemaServiceRecords,
		schemaTemplates,
		schemaProfiles,
		schemaDecisions,
	}
}
