package scheduler

import (
	"context"
	"time"

	obscontext "github.com/smallbiznis/opspulse/internal/observability/context"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"github.com/smallbiznis/opspulse/internal/queue"
	"go.uber.org/zap"
)

// tickRun is one firing of a timer. Its logger carries job and run_id.
type tickRun struct {
	log     *zap.Logger
	started time.Time
}

func (s *Scheduler) startRun(ctx context.Context, job string) (context.Context, *tickRun) {
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	return ctx, &tickRun{
		log: obslogger.WithContext(ctx, s.log).With(
			zap.String("job", job),
			zap.String("run_id", s.genID.Generate().String()),
		),
		started: time.Now(),
	}
}

func (r *tickRun) skipped() {
	r.log.Debug("scheduler.tick_skipped")
}

func (r *tickRun) claimFailed(err error) {
	r.log.Warn("scheduler.tick_claim_failed", zap.Error(err))
}

func (r *tickRun) enqueued(job *queue.Job) {
	r.log.Debug("scheduler.tick",
		zap.String("queue_job_id", job.ID.String()),
		zap.Int64("duration_ms", time.Since(r.started).Milliseconds()),
	)
}

func (r *tickRun) failed(err error) {
	r.log.Error("scheduler.enqueue_failed",
		zap.String("error_type", obsmetrics.ClassifyErrorType(err)),
		zap.Error(err),
	)
}
