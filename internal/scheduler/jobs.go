package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/cache"
	"github.com/pricelens/pricelens/internal/events"
	"github.com/pricelens/pricelens/internal/modules/embedding"
	"github.com/pricelens/pricelens/internal/modules/pricing"
	"github.com/pricelens/pricelens/internal/monitoring"
)

// PriceCycleJob triggers one price-engine update cycle.
type PriceCycleJob struct {
	Engine *pricing.Engine
}

func (j *PriceCycleJob) Name() string { return "price_cycle" }

func (j *PriceCycleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	j.Engine.RunCycle(ctx)
	return nil
}

// SystemSampleJob takes one system gauge sample and evaluates alerts.
type SystemSampleJob struct {
	Monitor *monitoring.SystemMonitor
	Alerts  *monitoring.AlertManager
}

func (j *SystemSampleJob) Name() string { return "system_sample" }

func (j *SystemSampleJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sample, err := j.Monitor.Sample(ctx)
	if err != nil {
		return err
	}
	j.Alerts.Evaluate(sample)
	return nil
}

// CacheSweepJob purges expired entries from both cache tiers.
type CacheSweepJob struct {
	Cache       *cache.Manager
	Broadcaster *events.Broadcaster
	Log         zerolog.Logger
}

func (j *CacheSweepJob) Name() string { return "cache_sweep" }

func (j *CacheSweepJob) Run() error {
	removed := j.Cache.SweepExpired()
	if removed > 0 {
		j.Log.Debug().Int("removed", removed).Msg("Swept expired cache entries")
		if j.Broadcaster != nil {
			j.Broadcaster.Publish(events.TypeCacheSweep, events.CacheSweepData{Removed: removed})
		}
	}
	return nil
}

// EmbeddingRefreshJob rebuilds the embedding index when the persisted
// blob crosses the staleness horizon or the schema changed.
type EmbeddingRefreshJob struct {
	Index *embedding.Index
}

func (j *EmbeddingRefreshJob) Name() string { return "embedding_refresh" }

func (j *EmbeddingRefreshJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	return j.Index.EnsureBuilt(ctx)
}
