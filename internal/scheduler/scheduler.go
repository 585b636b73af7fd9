// Package scheduler runs the Orchestrator on a cron schedule for the
// CLI's daemon mode (spec §6.5: `refresh <mode>` parameterizes the
// engine; daemon mode repeats that same call on an interval instead of
// running once), adapted from the teacher's internal/scheduler.Scheduler.
package scheduler

import (
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is one schedulable unit of work.
type Job interface {
	Run() error
	Name() string
}

// Scheduler manages cron-triggered jobs.
type Scheduler struct {
	cron *cron.Cron
	log  zerolog.Logger
}

// New creates a Scheduler using standard 5-field cron expressions.
func New(log zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron: cron.New(),
		log:  log.With().Str("component", "scheduler").Logger(),
	}
}

// Start begins executing registered jobs on their schedules.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop waits for any in-flight job to finish, then stops the scheduler.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// AddJob registers job to run on schedule (standard cron syntax, e.g.
// "0 */15 * * * *" isn't valid without WithSeconds; this scheduler uses
// the standard 5-field form: "*/15 * * * *").
func (s *Scheduler) AddJob(schedule string, job Job) error {
	_, err := s.cron.AddFunc(schedule, func() {
		log := s.log.With().Str("job", job.Name()).Logger()
		log.Info().Msg("running scheduled refresh")
		if err := job.Run(); err != nil {
			log.Error().Err(err).Msg("scheduled refresh failed")
			return
		}
		log.Info().Msg("scheduled refresh completed")
	})
	if err != nil {
		return err
	}
	s.log.Info().Str("schedule", schedule).Str("job", job.Name()).Msg("job registered")
	return nil
}
