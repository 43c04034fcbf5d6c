// Package jobs runs the periodic economy maintenance tasks on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Task is one unit of periodic work. It returns a short summary for the log.
type Task func(ctx context.Context) (string, error)

type job struct {
	spec    string
	timeout time.Duration
	task    Task
}

// Scheduler runs registered tasks. Overlapping runs of the same task are skipped.
type Scheduler struct {
	cron *cron.Cron
	ctx  context.Context
	stop context.CancelFunc
	jobs map[string]job
}

func NewScheduler() *Scheduler {
	logger := cronLogger{l: log.Logger.With().Str("component", "jobs").Logger()}
	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	ctx, stop := context.WithCancel(context.Background())
	return &Scheduler{cron: c, ctx: ctx, stop: stop, jobs: make(map[string]job)}
}

// Register schedules task under name. An empty spec disables the task.
func (s *Scheduler) Register(name, spec string, timeout time.Duration, task Task) error {
	if spec == "" {
		log.Info().Str("job", name).Msg("job disabled")
		return nil
	}
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := job{spec: spec, timeout: timeout, task: task}
	if _, err := s.cron.AddFunc(spec, func() { s.run(s.ctx, name, j) }); err != nil {
		return fmt.Errorf("job %s: invalid schedule %q: %w", name, spec, err)
	}
	s.jobs[name] = j
	return nil
}

// Names returns the registered job names.
func (s *Scheduler) Names() []string {
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunNow executes one registered job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("unknown job %s", name)
	}
	return s.run(ctx, name, j)
}

func (s *Scheduler) run(ctx context.Context, name string, j job) error {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	start := time.Now()
	summary, err := j.task(ctx)
	if err != nil {
		log.Error().Err(err).Str("job", name).Dur("took", time.Since(start)).Msg("job failed")
		return err
	}
	log.Debug().Str("job", name).Str("result", summary).Dur("took", time.Since(start)).Msg("job finished")
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	log.Info().Strs("jobs", s.Names()).Msg("job scheduler started")
}

// Stop cancels running tasks and waits for them to return.
func (s *Scheduler) Stop() {
	s.stop()
	<-s.cron.Stop().Done()
	log.Info().Msg("job scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	l zerolog.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
