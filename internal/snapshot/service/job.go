package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/opspulse/internal/queue"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"go.uber.org/zap"
)

// DailyJob runs the snapshot computation from the queue.
type DailyJob struct {
	svc snapshotdomain.Service
	log *zap.Logger
}

func NewDailyJob(svc snapshotdomain.Service, log *zap.Logger) *DailyJob {
	return &DailyJob{svc: svc, log: log.Named("snapshot.job")}
}

func (j *DailyJob) Queue() string { return snapshotdomain.DailyQueue }

func (j *DailyJob) Handle(ctx context.Context, job *queue.Job) error {
	var payload snapshotdomain.DailyJobPayload
	if err := job.Decode(&payload); err != nil {
		// A malformed payload will never succeed; drop it.
		j.log.Warn("snapshot.job.invalid_payload", zap.String("job_id", job.ID.String()), zap.Error(err))
		return nil
	}

	if date := strings.TrimSpace(payload.Date); date != "" {
		if _, err := j.svc.ComputeAndPersistDailySnapshot(ctx, date); err != nil {
			return fmt.Errorf("compute snapshot %s: %w", date, err)
		}
		return nil
	}

	resp, computed, err := j.svc.ComputePreviousDay(ctx)
	if err != nil {
		return fmt.Errorf("compute previous day: %w", err)
	}
	if !computed && resp != nil {
		j.log.Debug("snapshot.job.skipped", zap.String("snapshot_date", resp.SnapshotDate))
	}
	return nil
}
