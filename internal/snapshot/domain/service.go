package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	// ComputeAndPersistDailySnapshot computes the KPIs for one calendar day in
	// the configured timezone and upserts them. Upstream failures degrade to
	// empty input; only persistence errors are returned.
	ComputeAndPersistDailySnapshot(ctx context.Context, date string) (*Response, error)
	// ComputePreviousDay computes "yesterday" unless an ok snapshot already exists.
	ComputePreviousDay(ctx context.Context) (*Response, bool, error)
	GetByDate(ctx context.Context, date string) (*Response, error)
	List(ctx context.Context, req ListRequest) ([]Response, error)
}

type ListRequest struct {
	From  string `form:"from"`
	To    string `form:"to"`
	Limit int    `form:"limit"`
}

type Response struct {
	ID                string    `json:"id"`
	SnapshotDate      string    `json:"snapshot_date"`
	TotalRevenue      string    `json:"total_revenue"`
	TotalOrders       int64     `json:"total_orders"`
	AvgServiceMinutes string    `json:"avg_service_minutes"`
	RotationIndex     string    `json:"rotation_index"`
	AvgTicket         string    `json:"avg_ticket"`
	AlertsGenerated   int64     `json:"alerts_generated"`
	Status            Status    `json:"status"`
	Metadata          *Metadata `json:"metadata,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

var (
	ErrInvalidDate  = errors.New("invalid_snapshot_date")
	ErrInvalidRange = errors.New("invalid_snapshot_range")
	ErrNotFound     = errors.New("snapshot_not_found")
)

// ParseDate validates a YYYY-MM-DD key.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// DailyQueue is the queue consumed by the daily snapshot job.
const DailyQueue = "snapshots.daily"

// DailyJobPayload optionally pins the job to one date; empty means yesterday.
type DailyJobPayload struct {
	Date string `json:"date,omitempty"`
}
