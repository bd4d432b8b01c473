package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

// schemaSnapshots holds raw poll snapshots. Records and aggregate are stored
// as JSON; normalized rows are never persisted.
const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    records TEXT NOT NULL,
    aggregate TEXT NOT NULL,
    aggregate_fallback INTEGER NOT NULL DEFAULT 0,
    sample_data INTEGER NOT NULL DEFAULT 0,
    fetched_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_fetched ON snapshots(fetched_at);
`

const schemaActionLogs = `
CREATE TABLE IF NOT EXISTS action_logs (
    id TEXT PRIMARY KEY,
    record_id TEXT NOT NULL,
    action TEXT NOT NULL,
    role TEXT NOT NULL,
    outcome TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_action_logs_record ON action_logs(record_id);
CREATE INDEX IF NOT EXISTS idx_action_logs_created ON action_logs(created_at);
`

const schemaTriageRules = `
CREATE TABLE IF NOT EXISTS triage_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_triage_rules_name ON triage_rules(name);
CREATE INDEX IF NOT EXISTS idx_triage_rules_enabled ON triage_rules(enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSnapshots,
		schemaActionLogs,
		schemaTriageRules,
	}
}
