// internal/scheduler/scheduler.go
package scheduler

import (
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Job is the callback invoked when a scheduled maintenance job fires.
type Job func()

type entry struct {
	name     string
	schedule string
	job      Job
}

// Scheduler runs named maintenance jobs on cron schedules.
type Scheduler struct {
	entries []entry
	cron    *cron.Cron
}

// cronParser accepts both standard 5-field cron expressions and 6-field
// expressions with an optional seconds field.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates an empty Scheduler. Jobs are registered with Add and begin
// firing once Start is called.
func New() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithParser(cronParser))}
}

// Add validates the schedule and registers a named job.
func (s *Scheduler) Add(name, schedule string, job Job) error {
	if _, err := cronParser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid schedule %q for %s: %w", schedule, name, err)
	}
	s.entries = append(s.entries, entry{name: name, schedule: schedule, job: job})
	return nil
}

// Start registers every added job as a cron entry and starts the ticker.
func (s *Scheduler) Start() error {
	for _, e := range s.entries {
		e := e
		_, err := s.cron.AddFunc(e.schedule, func() {
			slog.Debug("maintenance job firing", "name", e.name)
			e.job()
		})
		if err != nil {
			return fmt.Errorf("schedule job %s: %w", e.name, err)
		}
		slog.Info("scheduled maintenance job", "name", e.name, "schedule", e.schedule)
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron ticker. A job already running finishes on its own.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
