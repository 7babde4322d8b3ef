package worker

import (
	"context"
	"fmt"
	"time"

	applog "receitas/internal/log"

	"github.com/robfig/cron/v3"
)

// Scheduler runs periodic jobs on a cron engine
type Scheduler struct {
	cronEngine *cron.Cron
	logger     *applog.Logger
	jobTimeout time.Duration
}

func NewScheduler(logger *applog.Logger, jobTimeout time.Duration) *Scheduler {
	logger = logger.WithComponent(applog.ComponentScheduler)
	cl := cronLogger{logger}
	return &Scheduler{
		cronEngine: cron.New(
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger:     logger,
		jobTimeout: jobTimeout,
	}
}

// AddJob registers fn under a standard cron spec or an "@every" descriptor.
func (s *Scheduler) AddJob(name, spec string, fn func(ctx context.Context) error) error {
	_, err := s.cronEngine.AddFunc(spec, func() {
		ctx := context.Background()
		if s.jobTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, s.jobTimeout)
			defer cancel()
		}
		start := time.Now()
		if err := fn(ctx); err != nil {
			s.logger.ErrorContext(ctx, "Scheduled job failed", "job", name, applog.FieldError, err)
			return
		}
		s.logger.DebugContext(ctx, "Scheduled job finished", "job", name, "duration", time.Since(start))
	})
	if err != nil {
		return fmt.Errorf("add job %s (%q): %w", name, spec, err)
	}
	s.logger.Info("Scheduled job registered", "job", name, "spec", spec)
	return nil
}

// Run starts the engine and blocks until ctx is done, then waits for running jobs.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cronEngine.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.cronEngine.Entries()))

	<-ctx.Done()

	s.logger.Info("Stopping scheduler...")
	<-s.cronEngine.Stop().Done()
	s.logger.Info("Scheduler stopped")
	return nil
}

// cronLogger adapts applog.Logger to cron.Logger
type cronLogger struct {
	l *applog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error(msg, append(keysAndValues, applog.FieldError, err)...)
}
