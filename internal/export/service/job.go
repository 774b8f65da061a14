package service

import (
	"context"
	"strings"

	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/queue"
	"go.uber.org/zap"
)

// RunJob executes export jobs claimed from the queue.
type RunJob struct {
	svc exportdomain.Service
	log *zap.Logger
}

func NewRunJob(svc exportdomain.Service, log *zap.Logger) *RunJob {
	return &RunJob{svc: svc, log: log.Named("export.job")}
}

func (j *RunJob) Queue() string { return exportdomain.RunQueue }

func (j *RunJob) Handle(ctx context.Context, job *queue.Job) error {
	jobID, ok := j.decode(job)
	if !ok {
		return nil
	}
	return j.svc.Run(ctx, jobID, job.FinalAttempt())
}

// OnDeadLetter covers attempts that never reached Run's own failure path,
// such as panics, timeouts and expired leases.
func (j *RunJob) OnDeadLetter(ctx context.Context, job *queue.Job, cause error) {
	jobID, ok := j.decode(job)
	if !ok {
		return
	}
	if err := j.svc.Fail(ctx, jobID, summarize(cause)); err != nil {
		j.log.Error("export.job.dead_letter_failed", zap.String("export_job_id", jobID), zap.Error(err))
	}
}

func (j *RunJob) decode(job *queue.Job) (string, bool) {
	var payload exportdomain.JobPayload
	if err := job.Decode(&payload); err != nil || strings.TrimSpace(payload.JobID) == "" {
		j.log.Warn("export.job.invalid_payload", zap.String("job_id", job.ID.String()), zap.Error(err))
		return "", false
	}
	return strings.TrimSpace(payload.JobID), true
}
