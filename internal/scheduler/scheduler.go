package scheduler

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	submitMaxAttempts = 3
	submitBackoff     = 2 * time.Second
	enqueueTimeout    = 10 * time.Second
)

var (
	ErrInvalidConfig = errors.New("invalid_scheduler_config")
	ErrInvalidName   = errors.New("invalid_job_name")
)

// Recurring describes a job enqueued on a fixed interval.
type Recurring struct {
	Spec    string
	Payload any
}

type Params struct {
	fx.In

	Queue  queue.Enqueuer
	Log    *zap.Logger
	GenID  *snowflake.Node
	Config Config `optional:"true"`
	// Guard dedups ticks across scheduler replicas; nil runs every tick.
	Guard *ratelimit.TickGuard `optional:"true"`
}

// Scheduler owns a registry of named recurring timers. Each tick enqueues a
// job; execution happens in the worker pool.
type Scheduler struct {
	queue   queue.Enqueuer
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	guard   *ratelimit.TickGuard
	metrics *obsmetrics.PipelineMetrics

	mu     sync.Mutex
	timers map[string]*timer
}

type timer struct {
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

func New(p Params) (*Scheduler, error) {
	if p.Queue == nil || p.Log == nil || p.GenID == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		queue:   p.Queue,
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		guard:   p.Guard,
		metrics: obsmetrics.Pipeline(),
		timers:  make(map[string]*timer),
	}, nil
}

// Start enqueues name immediately and then once per interval until stopped.
// It returns false when a timer with that name is already running.
func (s *Scheduler) Start(name string, r Recurring) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrInvalidName
	}
	interval, ok := ParseRecurrence(r.Spec, s.cfg.DefaultInterval)
	if !ok {
		s.log.Warn("scheduler.recurrence.fallback",
			zap.String("job", name),
			zap.String("spec", r.Spec),
			zap.Duration("interval", interval),
		)
	}

	s.mu.Lock()
	if _, exists := s.timers[name]; exists {
		s.mu.Unlock()
		return false, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{interval: interval, cancel: cancel, done: make(chan struct{})}
	s.timers[name] = t
	s.metrics.SetTimersRunning(len(s.timers))
	s.mu.Unlock()

	s.log.Info("scheduler.timer.start", zap.String("job", name), zap.Duration("interval", interval))
	go s.runTimer(ctx, name, t, r.Payload)
	return true, nil
}

func (s *Scheduler) runTimer(ctx context.Context, name string, t *timer, payload any) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		s.tick(ctx, name, t.interval, payload)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) tick(parent context.Context, name string, interval time.Duration, payload any) {
	if parent.Err() != nil {
		return
	}
	ctx, run := s.startRun(parent, name)
	ctx, cancel := context.WithTimeout(ctx, enqueueTimeout)
	defer cancel()

	acquired, err := s.guard.Claim(ctx, name, interval)
	switch {
	case err != nil:
		run.claimFailed(err)
	case !acquired:
		run.skipped()
		return
	}

	job, err := s.queue.Enqueue(ctx, name, payload, queue.EnqueueOptions{Origin: "timer"})
	if err != nil {
		if parent.Err() == nil {
			run.failed(err)
		}
		return
	}
	run.enqueued(job)
}

// Stop cancels the named timer. Jobs it already enqueued are left alone.
func (s *Scheduler) Stop(name string) bool {
	s.mu.Lock()
	t, ok := s.timers[name]
	if ok {
		delete(s.timers, name)
		s.metrics.SetTimersRunning(len(s.timers))
	}
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	<-t.done
	s.log.Info("scheduler.timer.stop", zap.String("job", name))
	return true
}

func (s *Scheduler) StopAll() {
	for _, name := range s.Running() {
		s.Stop(name)
	}
}

// Running returns the names of active timers in stable order.
func (s *Scheduler) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.timers))
	for name := range s.timers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Submit enqueues a one-shot job with 3 attempts and exponential backoff
// starting at 2s.
func (s *Scheduler) Submit(ctx context.Context, name string, payload any) (*queue.Job, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	return s.queue.Enqueue(ctx, name, payload, queue.EnqueueOptions{
		MaxAttempts: submitMaxAttempts,
		Backoff:     submitBackoff,
		Origin:      "submit",
	})
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	// Empty means every job runs (monolith mode).
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}
