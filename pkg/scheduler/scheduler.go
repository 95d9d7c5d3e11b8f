// Package scheduler runs the periodic evaluation loop that turns enabled
// job schedules into backup runs. The loop never blocks a tick on run
// completion: it starts due runs and moves on.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/duplistack/core/pkg/coordinator"
	"github.com/duplistack/core/pkg/logger"
	"github.com/duplistack/core/pkg/models"
	"github.com/duplistack/core/pkg/registry"
)

// RunStarter is the slice of the coordinator the scheduler needs.
type RunStarter interface {
	StartRun(ctx context.Context, jobID string, trigger models.Trigger, threads int) error
	OnComplete(fn func(job *models.Job, outcome models.RunOutcome))
}

// Scheduler evaluates every enabled schedule once per tick and hands due
// jobs to the coordinator.
type Scheduler struct {
	reg     registry.Registry
	starter RunStarter
	tick    time.Duration
	log     *logger.Logger
	nowFn   func() time.Time
	stopCh  chan struct{}
}

func New(reg registry.Registry, starter RunStarter, tick time.Duration, log *logger.Logger) *Scheduler {
	if tick <= 0 {
		tick = 30 * time.Second
	}
	s := &Scheduler{
		reg:     reg,
		starter: starter,
		tick:    tick,
		log:     log,
		nowFn:   time.Now,
		stopCh:  make(chan struct{}),
	}
	starter.OnComplete(s.recomputeAfterRun)
	return s
}

// Run drives the tick loop until the context is cancelled or Stop is
// called.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().
		Str("action", "scheduler_start").
		Dur("tick", s.tick).
		Msg("Scheduler loop started")

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Str("action", "scheduler_stop").Msg("Scheduler loop stopped")
			return ctx.Err()
		case <-s.stopCh:
			s.log.Info().Str("action", "scheduler_stop").Msg("Scheduler loop stopped")
			return nil
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Stop ends the loop.
func (s *Scheduler) Stop() {
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
}

// Tick evaluates all schedulable jobs once. Each job's due-check and
// trigger attempt is isolated: one job failing never aborts the rest of
// the tick.
func (s *Scheduler) Tick(ctx context.Context) {
	jobs, err := s.reg.GetSchedulableJobs(ctx)
	if err != nil {
		s.log.Error().Err(err).Str("action", "tick_failed").Msg("Could not list schedulable jobs")
		return
	}

	now := s.nowFn()
	for _, job := range jobs {
		s.evaluateJob(ctx, job, now)
	}
}

func (s *Scheduler) evaluateJob(ctx context.Context, job *models.Job, now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Str("job_id", job.ID).
				Interface("panic", r).
				Msg("Recovered from panic while evaluating schedule")
		}
	}()

	sched := job.Schedule
	if sched == nil || !sched.Enabled {
		return
	}

	if sched.NextDueAt == nil {
		next, err := NextDue(sched, now)
		if err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("Invalid schedule")
			return
		}
		sched.NextDueAt = &next
		if err := s.reg.UpdateNextDue(ctx, job.ID, sched); err != nil {
			s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to initialize next due time")
		}
		return
	}

	if now.Before(*sched.NextDueAt) {
		return
	}

	// Advance next-due before launching so a slow run cannot re-trigger
	// on the following ticks.
	next, err := NextDue(sched, now)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Invalid schedule")
		return
	}
	sched.NextDueAt = &next

	err = s.starter.StartRun(ctx, job.ID, models.TriggerScheduler, sched.Threads)
	switch {
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		// A manual run is in progress; defer to the next tick instead of
		// burning the slot, so the schedule is not starved.
		s.log.Debug().
			Str("job_id", job.ID).
			Str("action", "schedule_deferred").
			Msg("Job already running, deferring scheduled run")
		return
	case err != nil:
		s.log.Error().
			Err(err).
			Str("job_id", job.ID).
			Str("action", "schedule_trigger_failed").
			Msg("Failed to start scheduled run")
		sched.LastRunStatus = "error"
		sched.LastError = err.Error()
	default:
		s.log.Info().
			Str("job_id", job.ID).
			Str("job_name", job.Name).
			Str("action", "schedule_triggered").
			Time("next_due", next).
			Msg("Scheduled backup started")
		sched.LastRunStatus = "queued"
		sched.LastError = ""
	}

	if err := s.reg.UpdateNextDue(ctx, job.ID, sched); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist next due time")
	}
}

// recomputeAfterRun refreshes a job's schedule bookkeeping once its run
// reaches a terminal state. Next-due derives from the schedule's slot, so
// a 90-minute run of a daily 23:00 backup still lands on tomorrow 23:00.
func (s *Scheduler) recomputeAfterRun(job *models.Job, outcome models.RunOutcome) {
	if job.Schedule == nil || !job.Schedule.Enabled {
		return
	}

	now := s.nowFn()
	next, err := NextDue(job.Schedule, now)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Invalid schedule")
		return
	}

	sched := *job.Schedule
	sched.NextDueAt = &next
	sched.LastRunAt = &now
	sched.LastRunStatus = string(outcome.Status)
	if outcome.Status == models.RunStatusSuccess {
		sched.LastError = ""
	} else {
		sched.LastError = outcome.Message
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.reg.UpdateNextDue(ctx, job.ID, &sched); err != nil {
		s.log.Error().Err(err).Str("job_id", job.ID).Msg("Failed to persist next due time after run")
	}
}
