// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/securekyc/kestrel/internal/domain"
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

// SaveSnapshot stores one poll cycle's raw records and aggregate. Only raw
// data is persisted; normalized rows are recomputed on load.
func (r *SQLRepository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if snap == nil || snap.ID == "" {
		return fmt.Errorf("%w: snapshot id is required", ErrInvalidInput)
	}

	records, err := json.Marshal(snap.Records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	aggregate, err := json.Marshal(snap.Aggregate)
	if err != nil {
		return fmt.Errorf("failed to marshal aggregate: %w", err)
	}

	query := `
		INSERT INTO snapshots (
			id, records, aggregate, aggregate_fallback, sample_data, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		snap.ID, string(records), string(aggregate),
		boolToInt(snap.AggregateFallback), boolToInt(snap.SampleData),
		snap.FetchedAt,
	)
	return err
}

// LatestSnapshot retrieves the most recent snapshot for last-known-good
// recovery after a restart.
func (r *SQLRepository) LatestSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	query := `
		SELECT id, records, aggregate, aggregate_fallback, sample_data, fetched_at
		FROM snapshots
		ORDER BY fetched_at DESC
		LIMIT 1
	`

	var snap domain.Snapshot
	var records, aggregate string
	var aggregateFallback, sampleData int

	err := r.db.QueryRowContext(ctx, query).Scan(
		&snap.ID, &records, &aggregate,
		&aggregateFallback, &sampleData, &snap.FetchedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(records), &snap.Records); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot records: %w", err)
	}
	if err := json.Unmarshal([]byte(aggregate), &snap.Aggregate); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot aggregate: %w", err)
	}
	snap.AggregateFallback = aggregateFallback == 1
	snap.SampleData = sampleData == 1

	return &snap, nil
}

// SaveActionLog records one console review action.
func (r *SQLRepository) SaveActionLog(ctx context.Context, entry *domain.ActionLog) error {
	if entry == nil || entry.ID == "" {
		return fmt.Errorf("%w: action log id is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO action_logs (
			id, record_id, action, role, outcome, detail, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		entry.ID, entry.RecordID, entry.Action,
		entry.Role, entry.Outcome, entry.Detail,
		entry.CreatedAt,
	)
	return err
}

// ListActionLogs retrieves the most recent review actions, newest first.
func (r *SQLRepository) ListActionLogs(ctx context.Context, limit int) ([]*domain.ActionLog, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, record_id, action, role, outcome, detail, created_at
		FROM action_logs
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.ActionLog
	for rows.Next() {
		var entry domain.ActionLog
		if err := rows.Scan(
			&entry.ID, &entry.RecordID, &entry.Action,
			&entry.Role, &entry.Outcome, &entry.Detail,
			&entry.CreatedAt,
		); err != nil {
			return nil, err
		}
		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}

// SaveTriageRule stores a triage rule, replacing any previous version.
func (r *SQLRepository) SaveTriageRule(ctx context.Context, rule *domain.TriageRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule id is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}
	rule.UpdatedAt = now

	query := `
		INSERT INTO triage_rules (
			id, name, description, expression, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, rule.Expression,
		boolToInt(rule.Enabled), rule.CreatedAt, rule.UpdatedAt,
	)
	return err
}

// GetTriageRule retrieves a triage rule by ID.
func (r *SQLRepository) GetTriageRule(ctx context.Context, ruleID string) (*domain.TriageRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM triage_rules
		WHERE id = ?
	`

	var rule domain.TriageRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), ruleID).Scan(
		&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
		&enabled, &rule.CreatedAt, &rule.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListTriageRules retrieves all triage rules, ordered by name.
func (r *SQLRepository) ListTriageRules(ctx context.Context) ([]*domain.TriageRule, error) {
	query := `
		SELECT id, name, description, expression, enabled, created_at, updated_at
		FROM triage_rules
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.TriageRule
	for rows.Next() {
		var rule domain.TriageRule
		var enabled int
		if err := rows.Scan(
			&rule.ID, &rule.Name, &rule.Description, &rule.Expression,
			&enabled, &rule.CreatedAt, &rule.UpdatedAt,
		); err != nil {
			return nil, err
		}
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteTriageRule removes a triage rule.
func (r *SQLRepository) DeleteTriageRule(ctx context.Context, ruleID string) error {
	query := `DELETE FROM triage_rules WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), ruleID)
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

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
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
