package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pricelens/pricelens/internal/config"
	"github.com/pricelens/pricelens/internal/scheduler"
)

// RegisterJobs wires the background jobs onto the scheduler. The
// scheduler is returned stopped; the caller starts it once the HTTP
// surface is up.
func RegisterJobs(c *Container, cfg *config.Config, log zerolog.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.New(log)

	if c.Engine != nil {
		job := &scheduler.PriceCycleJob{Engine: c.Engine}
		if err := sched.AddEvery(cfg.Engine.Interval, job); err != nil {
			return nil, fmt.Errorf("failed to register price cycle job: %w", err)
		}
	}

	sampleJob := &scheduler.SystemSampleJob{Monitor: c.SystemMonitor, Alerts: c.AlertManager}
	if err := sched.AddEvery(cfg.Monitor.SampleInterval, sampleJob); err != nil {
		return nil, fmt.Errorf("failed to register system sample job: %w", err)
	}

	sweepJob := &scheduler.CacheSweepJob{Cache: c.Cache, Broadcaster: c.Broadcaster, Log: log}
	if err := sched.AddEvery(cfg.Cache.SweepInterval, sweepJob); err != nil {
		return nil, fmt.Errorf("failed to register cache sweep job: %w", err)
	}

	refreshJob := &scheduler.EmbeddingRefreshJob{Index: c.Index}
	if err := sched.AddJob("@hourly", refreshJob); err != nil {
		return nil, fmt.Errorf("failed to register embedding refresh job: %w", err)
	}

	return sched, nil
}
