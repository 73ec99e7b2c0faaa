package cron

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/dmitrymomot/restokit/pkg/logger"
)

var (
	ErrJobAlreadyRegistered   = errors.New("cron: job already registered")
	ErrSchedulerNotConfigured = errors.New("cron: no jobs registered")
	ErrInvalidJob             = errors.New("cron: job needs a name, a schedule and a function")
)

// JobFunc is one run of a job. It must be idempotent: the scheduler gives no
// exactly-once guarantee across restarts or replicas.
type JobFunc func(ctx context.Context) error

// Locker serializes runs of the same job across processes.
// WithLock reports acquired=false without running fn when another holder has the key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (acquired bool, err error)
}

// Scheduler runs registered jobs in-process when their schedule is due.
type Scheduler struct {
	jobs     map[string]*job
	mu       sync.Mutex
	interval time.Duration
	locker   Locker
	lockTTL  time.Duration
	logger   *slog.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

type job struct {
	name     string
	schedule Schedule
	fn       JobFunc
	next     time.Time
	running  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithCheckInterval sets how often the scheduler checks for due jobs.
func WithCheckInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithLocker makes every run take a distributed lock named after the job.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(s *Scheduler) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// NewScheduler creates a Scheduler.
func NewScheduler(opts ...Option) *Scheduler {
	s := &Scheduler{
		jobs:     make(map[string]*job),
		interval: 30 * time.Second,
		lockTTL:  10 * time.Minute,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add registers a job. Its first run is the schedule's next slot after now.
func (s *Scheduler) Add(name string, schedule Schedule, fn JobFunc) error {
	if name == "" || schedule == nil || fn == nil {
		return ErrInvalidJob
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return ErrJobAlreadyRegistered
	}
	s.jobs[name] = &job{
		name:     name,
		schedule: schedule,
		fn:       fn,
		next:     schedule.Next(s.now()),
	}

	s.logger.Info("registered job",
		logger.Job(name),
		slog.String("schedule", schedule.String()))
	return nil
}

// Jobs returns the registered job names, sorted.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Start checks for due jobs every interval until ctx is done, then waits
// for running jobs to return.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	count := len(s.jobs)
	s.mu.Unlock()
	if count == 0 {
		return ErrSchedulerNotConfigured
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler shutting down")
			s.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick starts every due job that is not already running.
func (s *Scheduler) Tick(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	due := make([]*job, 0)
	for _, j := range s.jobs {
		if j.running || j.next.After(now) {
			continue
		}
		j.running = true
		for !j.next.After(now) {
			j.next = j.schedule.Next(j.next)
		}
		due = append(due, j)
	}
	s.mu.Unlock()

	for _, j := range due {
		s.wg.Add(1)
		go func(j *job) {
			defer s.wg.Done()
			defer s.finish(j)
			s.run(ctx, j)
		}(j)
	}
}

// RunNow runs a job synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return ErrInvalidJob
	}
	return s.run(ctx, j)
}

// Wait blocks until jobs started by Tick have returned.
func (s *Scheduler) Wait() { s.wg.Wait() }

func (s *Scheduler) finish(j *job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.running = false
}

func (s *Scheduler) run(ctx context.Context, j *job) error {
	start := s.now()
	var err error
	if s.locker != nil {
		var acquired bool
		acquired, err = s.locker.WithLock(ctx, "cron:"+j.name, s.lockTTL, j.fn)
		if err == nil && !acquired {
			s.logger.DebugContext(ctx, "job skipped, another instance holds the lock", logger.Job(j.name))
			return nil
		}
	} else {
		err = j.fn(ctx)
	}

	if err != nil {
		s.logger.ErrorContext(ctx, "job failed",
			logger.Job(j.name),
			logger.Duration(s.now().Sub(start)),
			logger.Error(err))
		return err
	}
	s.logger.InfoContext(ctx, "job finished",
		logger.Job(j.name),
		logger.Duration(s.now().Sub(start)))
	return nil
}
