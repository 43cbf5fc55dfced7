package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"pxwatch/internal/logging"
)

// JobFunc is invoked at each trigger instant of its schedule.
type JobFunc func(ctx context.Context, now time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Location     *time.Location
	StartupDelay time.Duration
}

type job struct {
	name     string
	schedule cron.Schedule
	run      JobFunc
}

// Scheduler sleeps until the next trigger instant of any registered job and
// runs the due jobs one after another in registration order.
type Scheduler struct {
	opts   Options
	parser cron.Parser
	jobs   []job
	logger zerolog.Logger
	now    func() time.Time
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Scheduler{
		opts:   opts,
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		logger: logging.Component(logger, "scheduler"),
		now:    time.Now,
	}
}

// Add registers fn under a cron spec. Six-field specs carry a seconds column and
// a CRON_TZ= prefix pins the spec to a civil time zone.
func (s *Scheduler) Add(name, spec string, fn JobFunc) error {
	schedule, err := s.parser.Parse(spec)
	if err != nil {
		return fmt.Errorf("parse schedule %s %q: %w", name, spec, err)
	}
	s.AddSchedule(name, schedule, fn)
	return nil
}

// AddSchedule registers fn with a ready-made schedule.
func (s *Scheduler) AddSchedule(name string, schedule cron.Schedule, fn JobFunc) {
	s.jobs = append(s.jobs, job{name: name, schedule: schedule, run: fn})
}

// Run blocks, invoking due jobs until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if len(s.jobs) == 0 {
		return fmt.Errorf("no jobs registered")
	}

	if s.opts.StartupDelay > 0 {
		if err := s.wait(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	var last time.Time
	for {
		from := s.now()
		if from.Before(last) {
			from = last
		}
		next, due := s.nextBatch(from)
		if len(due) == 0 {
			return fmt.Errorf("no job has a future trigger")
		}

		s.logger.Debug().Time("next", next).Int("jobs", len(due)).Msg("waiting for next trigger")
		if err := s.wait(ctx, time.Until(next)); err != nil {
			return err
		}

		last = next
		for _, j := range due {
			s.runJob(ctx, j, next)
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
	}
}

// nextBatch returns the earliest trigger instant after now and the jobs due then, in registration order.
func (s *Scheduler) nextBatch(now time.Time) (time.Time, []job) {
	now = now.In(s.opts.Location)

	var earliest time.Time
	var due []job
	for _, j := range s.jobs {
		at := j.schedule.Next(now)
		if at.IsZero() {
			continue
		}
		switch {
		case earliest.IsZero() || at.Before(earliest):
			earliest = at
			due = []job{j}
		case at.Equal(earliest):
			due = append(due, j)
		}
	}
	return earliest.In(s.opts.Location), due
}

func (s *Scheduler) runJob(ctx context.Context, j job, at time.Time) {
	logger := s.logger.With().Str("job", j.name).Time("trigger", at).Logger()
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("job panicked")
		}
	}()

	started := time.Now()
	if err := j.run(ctx, at); err != nil {
		logger.Error().Err(err).Dur("took", time.Since(started)).Msg("job execution failed")
		return
	}
	logger.Debug().Dur("took", time.Since(started)).Msg("job completed")
}

func (s *Scheduler) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
