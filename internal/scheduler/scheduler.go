// Package scheduler runs periodic background jobs such as the analytics refresh.
//
// Jobs are scheduled using cron expressions.
package scheduler

import (
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultAnalyticsSpec refreshes analytics every fifteen minutes.
const DefaultAnalyticsSpec = "*/15 * * * *"

// slogLogger adapts slog to the cron.Logger interface.
type slogLogger struct{}

func (slogLogger) Info(msg string, keysAndValues ...interface{}) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (slogLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	slog.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := slogLogger{}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a named task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(name, expr string, task func()) error {
	id, err := s.cron.AddFunc(expr, func() {
		slog.Debug("Scheduler running job", "job", name)
		task()
	})
	if err != nil {
		slog.Error("Scheduler rejected job", "job", name, "spec", expr, "error", err)
		return err
	}
	slog.Info("Scheduler job added", "job", name, "spec", expr, "entryID", id)
	return nil
}

// Len returns the number of scheduled jobs.
func (s *Scheduler) Len() int {
	return len(s.cron.Entries())
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
