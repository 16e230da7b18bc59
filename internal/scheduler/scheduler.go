// Package scheduler drives the recurring background work of the price
// service: engine cycles, system gauge sampling, cache sweeps, and
// embedding index refreshes. Jobs run on cron schedules; a failing job
// is logged and retried on its next tick, never crashing the loop.
package scheduler

import (
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one recurring unit of background work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler owns the cron loop all background jobs hang off.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins ticking. Jobs registered afterwards still run.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info().Msg("Scheduler started")
}

// Stop halts the schedule and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Info().Msg("Scheduler stopped")
}

// AddJob registers a job under a cron expression ("@every 5s",
// "@hourly", "*/5 * * * *"). Errors from the job itself are logged per
// run; only a bad expression fails registration.
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		s.log.Debug().Str("job", job.Name()).Msg("Running job")

		if err := job.Run(); err != nil {
			s.log.Error().
				Err(err).
				Str("job", job.Name()).
				Msg("Job failed")
		}
	})

	if err != nil {
		return err
	}

	s.log.Info().
		Str("schedule", schedule).
		Str("job", job.Name()).
		Msg("Job registered")

	return nil
}

// AddEvery registers a job on a fixed interval. Intervals come straight
// from configuration, so nonpositive values clamp to a minute instead of
// failing startup.
func (s *Scheduler) AddEvery(interval time.Duration, job Job) error {
	if interval <= 0 {
		interval = time.Minute
	}
	return s.AddJob("@every "+interval.String(), job)
}

// RunNow executes a job immediately, outside its schedule.
func (s *Scheduler) RunNow(job Job) error {
	s.log.Info().Str("job", job.Name()).Msg("Running job immediately")
	return job.Run()
}
