package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/opspulse/internal/observability/context"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"github.com/smallbiznis/opspulse/internal/observability/tracing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrNoHandler = errors.New("queue_handler_not_registered")

type WorkerParams struct {
	fx.In

	Store    *Store
	Registry *Registry
	Log      *zap.Logger
	Config   Config `optional:"true"`
}

// Worker drains the queues that have a registered handler.
type Worker struct {
	store    *Store
	registry *Registry
	log      *zap.Logger
	cfg      Config
	owner    string
	metrics  *obsmetrics.PipelineMetrics

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

func NewWorker(p WorkerParams) (*Worker, error) {
	if p.Store == nil || p.Registry == nil || p.Log == nil {
		return nil, ErrInvalidConfig
	}
	return &Worker{
		store:    p.Store,
		registry: p.Registry,
		log:      p.Log.Named("queue.worker").With(zap.String("component", "worker")),
		cfg:      p.Config.withDefaults(),
		owner:    "worker-" + uuid.NewString(),
		metrics:  obsmetrics.Pipeline(),
	}, nil
}

// Start launches the worker loops and the lease reaper. It is a no-op when
// already running.
func (w *Worker) Start(parent context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.running = true

	w.log.Info("queue.worker.start",
		zap.Int("concurrency", w.cfg.Concurrency),
		zap.Strings("queues", w.registry.Queues()),
		zap.String("owner", w.owner),
	)
	for i := 0; i < w.cfg.Concurrency; i++ {
		w.wg.Add(1)
		go func(id int) {
			defer w.wg.Done()
			w.runLoop(ctx, id)
		}(i + 1)
	}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.reapLoop(ctx)
	}()
}

// Stop cancels the loops and waits for in-flight jobs until ctx expires.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.log.Info("queue.worker.stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) runLoop(ctx context.Context, id int) {
	for {
		processed, err := w.ProcessOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.log.Warn("queue.claim_failed", zap.Int("worker_id", id), zap.Error(err))
		}
		if processed {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Worker) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.ReapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.ReapOnce(ctx); err != nil && ctx.Err() == nil {
				w.log.Warn("queue.reap_failed", zap.Error(err))
			}
		}
	}
}

// ProcessOnce claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	queues := w.registry.Queues()
	job, err := w.store.Claim(ctx, queues, w.owner, w.cfg.Lease)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	w.process(ctx, job)
	return true, nil
}

// ReapOnce dead-letters expired final-attempt leases and fires the
// dead-letter hooks.
func (w *Worker) ReapOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.ReapExpired(ctx, w.cfg.ReapBatchSize)
	for i := range jobs {
		job := jobs[i]
		w.log.Warn("queue.job.lease_expired",
			zap.String("queue", job.Queue),
			zap.String("job_id", job.ID.String()),
			zap.Int("attempts", job.Attempts),
		)
		w.deadLetter(ctx, &job, errors.New("lease expired"))
	}
	return len(jobs), err
}

func (w *Worker) process(parent context.Context, job *Job) {
	ctx := obscontext.WithActor(parent, "system", "queue.worker")
	ctx = obscontext.WithJob(ctx, obscontext.Job{Queue: job.Queue, ID: job.ID.String(), Attempt: job.Attempts})
	log := obslogger.WithContext(ctx, w.log).With(zap.Int("max_attempts", job.MaxAttempts))

	handler, ok := w.registry.Get(job.Queue)
	var err error
	if !ok {
		err = fmt.Errorf("%w: %s", ErrNoHandler, job.Queue)
	} else {
		err = w.runJob(ctx, job, handler)
	}

	// Settlement must survive shutdown of the loop context.
	settleCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), 10*time.Second)
	defer cancel()

	if err == nil {
		if ackErr := w.store.Ack(settleCtx, job); ackErr != nil {
			log.Warn("queue.job.ack_failed", zap.Error(ackErr))
			return
		}
		log.Debug("queue.job.done")
		return
	}

	dead, nackErr := w.store.Nack(settleCtx, job, err)
	if nackErr != nil {
		log.Warn("queue.job.nack_failed", zap.Error(nackErr), zap.NamedError("cause", err))
		return
	}
	if dead {
		log.Error("queue.job.dead",
			zap.String("reason", obsmetrics.ClassifyJobReason(err)),
			zap.Error(err),
		)
		w.deadLetter(settleCtx, job, err)
		return
	}
	w.metrics.IncJobRetry(job.Queue)
	log.Warn("queue.job.failed",
		zap.String("reason", obsmetrics.ClassifyJobReason(err)),
		zap.Time("retry_at", job.VisibleAt),
		zap.Error(err),
	)
}

func (w *Worker) runJob(parent context.Context, job *Job, handler Handler) (err error) {
	start := time.Now()
	ctx, endSpan := tracing.StartJob(parent, job.Queue, job.ID.String(), job.Attempts)
	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	w.metrics.IncJobRun(job.Queue)
	defer func() {
		if r := recover(); r != nil {
			w.metrics.IncJobPanic(job.Queue)
			w.log.Error("queue.job.panic",
				zap.String("queue", job.Queue),
				zap.String("job_id", job.ID.String()),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%s: panic: %v", job.Queue, r)
		}
		w.metrics.ObserveJobDuration(job.Queue, time.Since(start))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				w.metrics.IncJobTimeout(job.Queue)
			}
			w.metrics.IncJobError(job.Queue, err)
		}
		endSpan(err)
	}()

	if err := handler.Handle(ctx, job); err != nil {
		return fmt.Errorf("%s: %w", job.Queue, err)
	}
	return nil
}

func (w *Worker) deadLetter(ctx context.Context, job *Job, cause error) {
	w.metrics.IncJobDeadLetter(job.Queue)
	handler, ok := w.registry.Get(job.Queue)
	if !ok {
		return
	}
	dl, ok := handler.(DeadLetterHandler)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("queue.dead_letter.panic", zap.String("queue", job.Queue), zap.Any("panic", r))
		}
	}()
	dl.OnDeadLetter(ctx, job, cause)
}
