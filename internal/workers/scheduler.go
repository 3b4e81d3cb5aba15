// Package workers schedules periodic background jobs on gocron.
package workers

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
)

// Job is one periodic unit of work. A failed run is logged and retried on
// the next tick.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler struct {
	sched gocron.Scheduler
	log   *slog.Logger
}

func NewScheduler(clock clockwork.Clock, logger *slog.Logger) (*Scheduler, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}

	sched, err := gocron.NewScheduler(gocron.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	return &Scheduler{sched: sched, log: logger.With("component", "workers")}, nil
}

// Every registers job to run immediately and then every interval. Runs of the
// same job never overlap; a tick that finds the previous run still going is
// skipped.
func (s *Scheduler) Every(ctx context.Context, interval time.Duration, job Job) error {
	log := s.log.With("job", job.Name())

	_, err := s.sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			start := time.Now()

			err := job.Run(ctx)
			if err != nil {
				log.ErrorContext(ctx, "job run failed", "err", err, "took", time.Since(start))
				return
			}

			log.DebugContext(ctx, "job run finished", "took", time.Since(start))
		}),
		gocron.WithName(job.Name()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return fmt.Errorf("schedule %s: %w", job.Name(), err)
	}

	log.InfoContext(ctx, "job scheduled", "interval", interval)

	return nil
}

func (s *Scheduler) Start() {
	s.sched.Start()
}

// Shutdown stops scheduling and waits for running jobs to return.
func (s *Scheduler) Shutdown(context.Context) error {
	err := s.sched.Shutdown()
	if err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}

	return nil
}
