// Package poller drives the periodic fetch-and-normalize cycle: raw records
// and the risk aggregate are fetched concurrently, normalized, and installed
// as a full replacement snapshot.
package poller

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/securekyc/kestrel/internal/derive"
	"github.com/securekyc/kestrel/internal/domain"
	"github.com/securekyc/kestrel/internal/sample"
)

// RecordSource lists raw KYC records.
type RecordSource interface {
	Records(ctx context.Context) ([]domain.RawRecord, error)
}

// AggregateSource fetches the pre-aggregated risk summary.
type AggregateSource interface {
	Aggregate(ctx context.Context) (domain.RiskAggregate, error)
}

// Poller refreshes the snapshot store at a fixed interval. A tick is skipped
// while the previous fetch is still in flight, so overlapping polls cannot
// install snapshots out of order.
type Poller struct {
	records   RecordSource
	aggregate AggregateSource
	store     *Store
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	interval  time.Duration

	inFlight atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// Config holds the poller dependencies. Repo, Cache, and Bus are optional;
// a nil value disables the corresponding side effect.
type Config struct {
	Records   RecordSource
	Aggregate AggregateSource
	Store     *Store
	Repo      domain.Repository
	Cache     domain.Cache
	Bus       domain.EventBus
	Interval  time.Duration
}

// New creates a poller.
func New(cfg Config) *Poller {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Poller{
		records:   cfg.Records,
		aggregate: cfg.Aggregate,
		store:     cfg.Store,
		repo:      cfg.Repo,
		cache:     cfg.Cache,
		bus:       cfg.Bus,
		interval:  interval,
	}
}

// Start runs an immediate refresh and then ticks until Stop or context
// cancellation.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		p.RefreshOnce(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.RefreshOnce(ctx)
			}
		}
	}()
}

// Stop halts the poll loop and waits for an in-flight refresh to finish.
func (p *Poller) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}

// RefreshOnce performs one fetch-and-normalize cycle. Returns false if the
// tick was skipped because a previous refresh is still running.
func (p *Poller) RefreshOnce(ctx context.Context) bool {
	if !p.inFlight.CompareAndSwap(false, true) {
		slog.Debug("poll tick skipped, previous fetch still in flight")
		return false
	}
	defer p.inFlight.Store(false)

	start := time.Now()
	snap := p.fetch(ctx)
	p.store.Replace(snap)
	p.persist(ctx, snap)
	p.announce(ctx, snap)

	slog.Info("snapshot refreshed",
		"snapshot_id", snap.ID,
		"records", len(snap.Records),
		"aggregate_fallback", snap.AggregateFallback,
		"sample_data", snap.SampleData,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}

// fetch issues the list and aggregate requests concurrently and joins them.
// Either source failing substitutes a fallback without blocking the other.
func (p *Poller) fetch(ctx context.Context) *domain.Snapshot {
	var (
		records    []domain.RawRecord
		recordsErr error
		agg        domain.RiskAggregate
		aggErr     error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		records, recordsErr = p.records.Records(gctx)
		return nil
	})
	g.Go(func() error {
		agg, aggErr = p.aggregate.Aggregate(gctx)
		return nil
	})
	_ = g.Wait()

	snap := &domain.Snapshot{
		ID:        uuid.New().String(),
		FetchedAt: time.Now().UTC(),
	}

	if recordsErr != nil {
		slog.Warn("record fetch failed", "error", recordsErr)
		p.trackFailureStreak(ctx, "records")
		records = p.recordFallback(ctx, snap)
	}
	snap.Records = records
	snap.Rows = derive.NormalizeAll(records)

	if aggErr != nil {
		slog.Warn("aggregate fetch failed, computing locally", "error", aggErr)
		p.trackFailureStreak(ctx, "aggregate")
		agg = derive.FallbackAggregate(records)
		snap.AggregateFallback = true
	}
	snap.Aggregate = agg

	return snap
}

// failureStreakAlert is the consecutive-failure count at which a streak is
// escalated from per-tick warnings to a single error log.
const failureStreakAlert = 5

// trackFailureStreak counts consecutive fetch failures per source in a
// cache window spanning several poll intervals. The counter expires on its
// own once a poll succeeds within the window, so there is no reset path.
func (p *Poller) trackFailureStreak(ctx context.Context, source string) {
	if p.cache == nil {
		return
	}
	streak, err := p.cache.IncrementCounter(ctx, "poll:failures:"+source, 10*p.interval)
	if err != nil {
		return
	}
	if streak == failureStreakAlert {
		slog.Error("backend fetch failing repeatedly",
			"source", source,
			"consecutive_failures", streak,
		)
	}
}

// recordFallback prefers the last-known-good record list, then the persisted
// snapshot, then the named sample dataset.
func (p *Poller) recordFallback(ctx context.Context, snap *domain.Snapshot) []domain.RawRecord {
	if prev := p.store.Snapshot(); prev != nil && len(prev.Records) > 0 {
		snap.SampleData = prev.SampleData
		return prev.Records
	}
	if p.repo != nil {
		if stored, err := p.repo.LatestSnapshot(ctx); err == nil && len(stored.Records) > 0 {
			snap.SampleData = stored.SampleData
			return stored.Records
		}
	}
	snap.SampleData = true
	return sample.Records()
}

// persist saves the snapshot and caches the aggregate. Both are best effort.
func (p *Poller) persist(ctx context.Context, snap *domain.Snapshot) {
	if p.repo != nil {
		if err := p.repo.SaveSnapshot(ctx, snap); err != nil {
			slog.Warn("failed to persist snapshot", "snapshot_id", snap.ID, "error", err)
		}
	}
	if p.cache != nil {
		agg := snap.Aggregate
		if err := p.cache.SetAggregate(ctx, &agg, 2*p.interval); err != nil {
			slog.Warn("failed to cache aggregate", "error", err)
		}
	}
}

// announce publishes refresh and degradation events.
func (p *Poller) announce(ctx context.Context, snap *domain.Snapshot) {
	if p.bus == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"snapshotId": snap.ID,
		"records":    len(snap.Records),
		"fetchedAt":  snap.FetchedAt,
	})
	if err == nil {
		if err := p.bus.Publish(ctx, domain.TopicPollRefresh, payload); err != nil {
			slog.Warn("failed to publish refresh event", "error", err)
		}
	}

	if !snap.AggregateFallback && !snap.SampleData {
		return
	}
	degraded, err := json.Marshal(map[string]any{
		"snapshotId":        snap.ID,
		"aggregateFallback": snap.AggregateFallback,
		"sampleData":        snap.SampleData,
	})
	if err == nil {
		if err := p.bus.Publish(ctx, domain.TopicPollDegraded, degraded); err != nil {
			slog.Warn("failed to publish degradation event", "error", err)
		}
	}
}
