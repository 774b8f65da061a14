package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/clock"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"go.uber.org/fx"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxErrorLength = 1024

// Enqueuer is the producer side of the queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (*Job, error)
}

type StoreParams struct {
	fx.In

	DB    *gorm.DB
	GenID *snowflake.Node
	Clock clock.Clock
}

// Store persists jobs in queue_jobs and hands them out under a visibility lease.
type Store struct {
	db      *gorm.DB
	genID   *snowflake.Node
	clock   clock.Clock
	metrics *obsmetrics.PipelineMetrics
}

func NewStore(p StoreParams) *Store {
	return &Store{
		db:      p.DB,
		genID:   p.GenID,
		clock:   p.Clock,
		metrics: obsmetrics.Pipeline(),
	}
}

func (s *Store) Enqueue(ctx context.Context, queue string, payload any, opts EnqueueOptions) (*Job, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return nil, ErrInvalidQueue
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJob, err)
	}
	opts = opts.withDefaults()

	now := s.clock.Now().UTC()
	job := &Job{
		ID:          s.genID.Generate(),
		Queue:       queue,
		Payload:     raw,
		Status:      StatusQueued,
		MaxAttempts: opts.MaxAttempts,
		BackoffMs:   opts.Backoff.Milliseconds(),
		VisibleAt:   now.Add(opts.Delay),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	s.metrics.IncEnqueued(queue, opts.Origin)
	return job, nil
}

// Claim leases the oldest visible job of the given queues to owner. Running
// jobs whose lease expired before their final attempt are claimed again.
// It returns nil when nothing is claimable.
func (s *Store) Claim(ctx context.Context, queues []string, owner string, lease time.Duration) (*Job, error) {
	if len(queues) == 0 {
		return nil, nil
	}
	now := s.clock.Now().UTC()

	var claimed *Job
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var candidate Job
		query := `SELECT id, queue, status, attempts, max_attempts, visible_at
			 FROM queue_jobs
			 WHERE queue IN ?
			   AND (status = ? OR (status = ? AND attempts < max_attempts))
			   AND visible_at <= ?
			 ORDER BY visible_at ASC, id ASC
			 LIMIT 1` + lockClause(tx)
		if err := tx.Raw(query, queues, StatusQueued, StatusRunning, now).Scan(&candidate).Error; err != nil {
			return err
		}
		if candidate.ID == 0 {
			return nil
		}

		res := tx.Exec(
			`UPDATE queue_jobs
			 SET status = ?, attempts = attempts + 1, visible_at = ?, lease_owner = ?, updated_at = ?
			 WHERE id = ? AND attempts = ? AND status = ?`,
			StatusRunning, now.Add(lease), owner, now,
			candidate.ID, candidate.Attempts, candidate.Status,
		)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var job Job
		if err := tx.Where("id = ?", candidate.ID).Take(&job).Error; err != nil {
			return err
		}
		s.metrics.ObserveClaimLag(now.Sub(candidate.VisibleAt))
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Ack marks a leased job as done.
func (s *Store) Ack(ctx context.Context, job *Job) error {
	now := s.clock.Now().UTC()
	res := s.db.WithContext(ctx).Exec(
		`UPDATE queue_jobs
		 SET status = ?, lease_owner = '', last_error = '', updated_at = ?
		 WHERE id = ? AND attempts = ? AND status = ?`,
		StatusDone, now, job.ID, job.Attempts, StatusRunning,
	)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	job.Status = StatusDone
	return nil
}

// Nack records a failed attempt. The job is requeued with exponential
// backoff, or moved to dead once its attempts are exhausted.
func (s *Store) Nack(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	now := s.clock.Now().UTC()
	status := StatusQueued
	visibleAt := now.Add(retryDelay(job.BackoffMs, job.Attempts))
	if job.FinalAttempt() {
		status = StatusDead
		visibleAt = now
	}

	res := s.db.WithContext(ctx).Exec(
		`UPDATE queue_jobs
		 SET status = ?, visible_at = ?, lease_owner = '', last_error = ?, updated_at = ?
		 WHERE id = ? AND attempts = ? AND status = ?`,
		status, visibleAt, errorSummary(cause), now,
		job.ID, job.Attempts, StatusRunning,
	)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected == 0 {
		return false, ErrLeaseLost
	}
	job.Status = status
	job.VisibleAt = visibleAt
	return status == StatusDead, nil
}

// ReapExpired dead-letters running jobs whose lease expired on their final
// attempt and returns them.
func (s *Store) ReapExpired(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	now := s.clock.Now().UTC()

	var expired []Job
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, queue, payload, status, attempts, max_attempts, backoff_ms,
		        visible_at, lease_owner, last_error, created_at, updated_at
		 FROM queue_jobs
		 WHERE status = ? AND attempts >= max_attempts AND visible_at <= ?
		 ORDER BY visible_at ASC, id ASC
		 LIMIT ?`,
		StatusRunning, now, limit,
	).Scan(&expired).Error
	if err != nil {
		return nil, err
	}

	reaped := make([]Job, 0, len(expired))
	for _, job := range expired {
		res := s.db.WithContext(ctx).Exec(
			`UPDATE queue_jobs
			 SET status = ?, lease_owner = '', last_error = ?, updated_at = ?
			 WHERE id = ? AND attempts = ? AND status = ?`,
			StatusDead, "lease expired", now,
			job.ID, job.Attempts, StatusRunning,
		)
		if res.Error != nil {
			return reaped, res.Error
		}
		if res.RowsAffected == 0 {
			continue
		}
		job.Status = StatusDead
		job.LastError = "lease expired"
		reaped = append(reaped, job)
	}
	if len(reaped) > 0 {
		s.metrics.AddLeasesReaped(int64(len(reaped)))
	}
	return reaped, nil
}

func (s *Store) Get(ctx context.Context, id snowflake.ID) (*Job, error) {
	var job Job
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, queue, payload, status, attempts, max_attempts, backoff_ms,
		        visible_at, lease_owner, last_error, created_at, updated_at
		 FROM queue_jobs WHERE id = ?`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == 0 {
		return nil, nil
	}
	return &job, nil
}

func lockClause(db *gorm.DB) string {
	switch db.Dialector.Name() {
	case "postgres", "mysql":
		return " FOR UPDATE SKIP LOCKED"
	default:
		return ""
	}
}

func encodePayload(payload any) (datatypes.JSON, error) {
	switch v := payload.(type) {
	case nil:
		return datatypes.JSON("{}"), nil
	case datatypes.JSON:
		return v, nil
	case json.RawMessage:
		return datatypes.JSON(v), nil
	case []byte:
		if !json.Valid(v) {
			return nil, fmt.Errorf("payload is not valid json")
		}
		return datatypes.JSON(v), nil
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return datatypes.JSON(raw), nil
	}
}

func errorSummary(err error) string {
	if err == nil {
		return ""
	}
	// Cut on a rune boundary; postgres text rejects invalid UTF-8.
	msg := strings.ToValidUTF8(err.Error(), "")
	if len(msg) > maxErrorLength {
		msg = strings.ToValidUTF8(msg[:maxErrorLength], "")
	}
	return msg
}
