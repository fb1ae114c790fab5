// Package cron schedules recurring and one-shot jobs on robfig/cron. Each
// job runs under a runner policy and is controlled through a Handle.
package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	automation "github.com/goliatone/go-automation"
	"github.com/goliatone/go-automation/runner"
)

// JobConfig configures how a scheduled job runs.
type JobConfig struct {
	// Expression is the cron expression, required by ScheduleCron.
	Expression string
	Retries    int
	Backoff    runner.Backoff
	// Timeout bounds each attempt.
	Timeout  time.Duration
	Deadline time.Time
	// Limit completes a recurring job after that many successful runs.
	Limit int
}

type Scheduler struct {
	cron         *rcron.Cron
	location     *time.Location
	logger       automation.Logger
	errorHandler func(error)
	verbose      bool
	seconds      bool

	mu     sync.Mutex
	nextID int64
	jobs   map[int64]*job
}

// NewScheduler builds a stopped scheduler. One-shot jobs run without Start.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		location: time.Local,
		jobs:     make(map[int64]*job),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	s.logger = automation.NormalizeLogger(s.logger)
	if s.errorHandler == nil {
		s.errorHandler = func(err error) { s.logger.Error("scheduled job failed: %v", err) }
	}

	fields := rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor
	if s.seconds {
		fields |= rcron.Second
	}
	logger := cronLogger{logger: s.logger, verbose: s.verbose}
	s.cron = rcron.New(
		rcron.WithLocation(s.location),
		rcron.WithParser(rcron.NewParser(fields)),
		rcron.WithLogger(logger),
		rcron.WithChain(rcron.SkipIfStillRunning(logger)),
	)
	return s
}

// ScheduleCron runs handler on every tick of cfg.Expression once the
// scheduler is started. handler is a func(), func() error or
// func(context.Context) error.
func (s *Scheduler) ScheduleCron(cfg JobConfig, handler any) (Handle, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("cron expression cannot be empty")
	}
	fn, err := adapt(handler)
	if err != nil {
		return nil, err
	}

	j := s.newJob()
	h := s.policy(cfg, runner.WithOnLimit(func() {
		s.release(j)
		j.finish(JobCompleted, nil)
	}))

	id, err := s.cron.AddFunc(cfg.Expression, func() {
		if isTerminal(j.Status()) {
			return
		}
		j.set(JobRunning, nil)
		if err := s.run(h, fn); err != nil {
			j.set(JobIdle, err)
			s.errorHandler(err)
			return
		}
		if !isTerminal(j.Status()) {
			j.set(JobIdle, nil)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", cfg.Expression, err)
	}
	s.track(j, id)
	return j, nil
}

// ScheduleAfter runs handler once after delay.
func (s *Scheduler) ScheduleAfter(delay time.Duration, cfg JobConfig, handler any) (Handle, error) {
	return s.ScheduleAt(time.Now().Add(max(delay, 0)), cfg, handler)
}

// ScheduleAt runs handler once at the given time.
func (s *Scheduler) ScheduleAt(at time.Time, cfg JobConfig, handler any) (Handle, error) {
	fn, err := adapt(handler)
	if err != nil {
		return nil, err
	}
	j := s.newJob()
	h := s.policy(cfg)
	s.track(j, 0)

	go func() {
		timer := time.NewTimer(max(time.Until(at), 0))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-j.Done():
			return
		}
		if isTerminal(j.Status()) {
			return
		}

		j.set(JobRunning, nil)
		err := s.run(h, fn)
		s.release(j)
		if err != nil {
			s.errorHandler(err)
			j.finish(JobFailed, err)
			return
		}
		j.finish(JobCompleted, nil)
	}()
	return j, nil
}

func (s *Scheduler) Start(context.Context) error {
	s.cron.Start()
	return nil
}

// Stop waits for running cron jobs and marks every live handle stopped.
// Jobs scheduled afterwards still work; one-shot jobs never needed Start.
func (s *Scheduler) Stop(ctx context.Context) error {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	s.mu.Lock()
	live := s.jobs
	s.jobs = make(map[int64]*job)
	s.mu.Unlock()

	for _, j := range live {
		if j.entryID != 0 {
			s.cron.Remove(j.entryID)
		}
		j.finish(JobStopped, nil)
	}
	return nil
}

// Pending returns the number of live handles.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *Scheduler) policy(cfg JobConfig, extra ...runner.Option) *runner.Handler {
	opts := []runner.Option{
		runner.WithLogger(s.logger),
		runner.WithMaxRetries(cfg.Retries),
		runner.WithTimeout(cfg.Timeout),
		runner.WithDeadline(cfg.Deadline),
		runner.WithLimit(cfg.Limit),
		runner.WithBackoff(cfg.Backoff),
	}
	return runner.NewHandler(append(opts, extra...)...)
}

// run executes fn under h, turning a panic into an error.
func (s *Scheduler) run(h *runner.Handler, fn func(context.Context) error) error {
	return h.Run(context.Background(), func(ctx context.Context) (err error) {
		defer func() {
			if pe := automation.RecoverPanic(recover()); pe != nil {
				err = pe
			}
		}()
		return fn(ctx)
	})
}

func adapt(handler any) (func(context.Context) error, error) {
	switch fn := handler.(type) {
	case func():
		return func(context.Context) error {
			fn()
			return nil
		}, nil
	case func() error:
		return func(context.Context) error { return fn() }, nil
	case func(context.Context) error:
		return fn, nil
	}
	return nil, fmt.Errorf("unsupported handler type: %T", handler)
}

func (s *Scheduler) newJob() *job {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	return &job{
		scheduler: s,
		id:        s.nextID,
		status:    JobScheduled,
		done:      make(chan struct{}),
	}
}

func (s *Scheduler) track(j *job, entry rcron.EntryID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.entryID = entry
	s.jobs[j.id] = j
}

// release forgets j and removes its cron entry.
func (s *Scheduler) release(j *job) {
	s.mu.Lock()
	delete(s.jobs, j.id)
	entry := j.entryID
	s.mu.Unlock()
	if entry != 0 {
		s.cron.Remove(entry)
	}
}
