package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/securekyc/kestrel/internal/domain"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	repo, err := New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "kestrel_test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSnapshotRoundTrip(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	// No snapshot yet
	if _, err := repo.LatestSnapshot(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty LatestSnapshot err = %v, want ErrNotFound", err)
	}

	snap := &domain.Snapshot{
		ID: "snap-1",
		Records: []domain.RawRecord{
			{"_id": "r1", "user_name": "Asha"},
		},
		Aggregate: domain.RiskAggregate{
			RiskBuckets: domain.RiskBuckets{Low: 1},
			RiskScore:   12,
		},
		AggregateFallback: true,
		FetchedAt:         time.Now().UTC().Truncate(time.Second),
	}
	if err := repo.SaveSnapshot(ctx, snap); err != nil {
		t.Fatal(err)
	}

	got, err := repo.LatestSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "snap-1" {
		t.Errorf("ID = %s", got.ID)
	}
	if len(got.Records) != 1 || got.Records[0]["_id"] != "r1" {
		t.Errorf("Records = %v", got.Records)
	}
	if got.Aggregate.RiskScore != 12 {
		t.Errorf("Aggregate = %+v", got.Aggregate)
	}
	if !got.AggregateFallback {
		t.Error("AggregateFallback flag lost")
	}
	if got.SampleData {
		t.Error("SampleData flag wrongly set")
	}
}

func TestLatestSnapshotOrdering(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"old", "mid", "new"} {
		err := repo.SaveSnapshot(ctx, &domain.Snapshot{
			ID:        id,
			FetchedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.LatestSnapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "new" {
		t.Errorf("LatestSnapshot = %s, want new", got.ID)
	}
}

func TestActionLogs(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, action := range []string{"approve", "reject", "flag"} {
		err := repo.SaveActionLog(ctx, &domain.ActionLog{
			ID:        action + "-log",
			RecordID:  "rec-1",
			Action:    action,
			Role:      "reviewer",
			Outcome:   "ok",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := repo.ListActionLogs(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	// Newest first
	if entries[0].Action != "flag" || entries[1].Action != "reject" {
		t.Errorf("order = %s, %s", entries[0].Action, entries[1].Action)
	}
}

func TestTriageRuleCRUD(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	rule := &domain.TriageRule{
		ID:         "rule-1",
		Name:       "high risk pending",
		Expression: `fraud_score > 70 && status == "Pending"`,
		Enabled:    true,
	}
	if err := repo.SaveTriageRule(ctx, rule); err != nil {
		t.Fatal(err)
	}

	got, err := repo.GetTriageRule(ctx, "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "high risk pending" || !got.Enabled {
		t.Errorf("rule = %+v", got)
	}

	// Upsert updates in place
	rule.Name = "renamed"
	rule.Enabled = false
	if err := repo.SaveTriageRule(ctx, rule); err != nil {
		t.Fatal(err)
	}
	got, err = repo.GetTriageRule(ctx, "rule-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "renamed" || got.Enabled {
		t.Errorf("updated rule = %+v", got)
	}

	rules, err := repo.ListTriageRules(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}

	if err := repo.DeleteTriageRule(ctx, "rule-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.GetTriageRule(ctx, "rule-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}
	if err := repo.DeleteTriageRule(ctx, "rule-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete err = %v, want ErrNotFound", err)
	}
}

func TestNewUnsupportedDriver(t *testing.T) {
	if _, err := New(domain.RepositoryConfig{Driver: "oracle"}); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
