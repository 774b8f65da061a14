package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusQueued  Status = "queued"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusDead    Status = "dead"
)

const (
	DefaultMaxAttempts = 3
	DefaultBackoff     = 2 * time.Second
)

var (
	ErrInvalidQueue  = errors.New("invalid_queue")
	ErrInvalidJob    = errors.New("invalid_job")
	ErrLeaseLost     = errors.New("queue_lease_lost")
	ErrInvalidConfig = errors.New("invalid_queue_config")
)

// Job is a unit of work persisted in queue_jobs.
type Job struct {
	ID          snowflake.ID   `gorm:"primaryKey" json:"id"`
	Queue       string         `gorm:"type:varchar(64);not null;index:ix_queue_jobs_claim,priority:1" json:"queue"`
	Payload     datatypes.JSON `json:"payload"`
	Status      Status         `gorm:"type:varchar(16);not null;index:ix_queue_jobs_claim,priority:2" json:"status"`
	Attempts    int            `gorm:"not null;default:0" json:"attempts"`
	MaxAttempts int            `gorm:"not null;default:3" json:"max_attempts"`
	BackoffMs   int64          `gorm:"not null;default:2000" json:"backoff_ms"`
	VisibleAt   time.Time      `gorm:"not null;index:ix_queue_jobs_claim,priority:3" json:"visible_at"`
	LeaseOwner  string         `gorm:"type:varchar(128)" json:"lease_owner,omitempty"`
	LastError   string         `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

func (Job) TableName() string { return "queue_jobs" }

// FinalAttempt reports whether the current claim is the last one allowed.
func (j Job) FinalAttempt() bool {
	return j.Attempts >= j.MaxAttempts
}

// Decode unmarshals the payload into out. An empty payload leaves out untouched.
func (j Job) Decode(out any) error {
	if len(j.Payload) == 0 || strings.TrimSpace(string(j.Payload)) == "null" {
		return nil
	}
	return json.Unmarshal(j.Payload, out)
}

// EnqueueOptions controls retry behaviour of a new job.
type EnqueueOptions struct {
	MaxAttempts int
	Backoff     time.Duration
	Delay       time.Duration
	Origin      string
}

func (o EnqueueOptions) withDefaults() EnqueueOptions {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	if o.Delay < 0 {
		o.Delay = 0
	}
	if strings.TrimSpace(o.Origin) == "" {
		o.Origin = "api"
	}
	return o
}

// retryDelay is backoff × 2^(attempts-1).
func retryDelay(backoffMs int64, attempts int) time.Duration {
	if backoffMs <= 0 {
		backoffMs = DefaultBackoff.Milliseconds()
	}
	if attempts < 1 {
		attempts = 1
	}
	shift := attempts - 1
	if shift > 20 {
		shift = 20
	}
	return time.Duration(backoffMs<<uint(shift)) * time.Millisecond
}
