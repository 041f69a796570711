// Package scheduler provides scheduling logic for FocusLoop.
//
// It runs the recurring maintenance jobs: classifier retraining cadence and
// the daily energy-schedule checkpoint.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Well-known cron expressions for FocusLoop jobs.
const (
	// RetrainExpr fires on the 1st of each month at 03:00; combined with the
	// worker's own 30-day cadence check this gives roughly monthly retraining.
	RetrainExpr = "0 3 1 * *"
	// EnergyCheckpointExpr fires daily at 04:00 to snapshot energy schedules.
	EnergyCheckpointExpr = "0 4 * * *"
)

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Standard 5-field cron parser (min, hour, dom, month, dow) with panic
	// recovery so one bad job cannot kill the scheduler.
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	if err != nil {
		return err
	}
	slog.Debug("Scheduler.AddJob: job scheduled", "expr", expr)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
