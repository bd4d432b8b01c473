package domain

import (
	"context"
	"time"
)

// Repository defines the interface for Kestrel's local persistence.
// It stores raw poll snapshots (for last-known-good recovery), the console
// action log, and triage rule configurations. Derived rows are never
// persisted; normalization is recomputed on every poll.
type Repository interface {
	// Snapshot operations
	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	LatestSnapshot(ctx context.Context) (*Snapshot, error)

	// Action log operations
	SaveActionLog(ctx context.Context, entry *ActionLog) error
	ListActionLogs(ctx context.Context, limit int) ([]*ActionLog, error)

	// Triage rule operations
	SaveTriageRule(ctx context.Context, rule *TriageRule) error
	GetTriageRule(ctx context.Context, ruleID string) (*TriageRule, error)
	ListTriageRules(ctx context.Context) ([]*TriageRule, error)
	DeleteTriageRule(ctx context.Context, ruleID string) error

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
