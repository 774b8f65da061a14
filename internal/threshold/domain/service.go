package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

type Service interface {
	// UpdateThreshold appends a new version; it becomes current immediately.
	UpdateThreshold(ctx context.Context, req UpdateRequest) (*Response, error)
	// Current returns nil, nil when the metric has no threshold yet.
	Current(ctx context.Context, metricKey string) (*Threshold, error)
	History(ctx context.Context, metricKey string, limit int) ([]Response, error)
	ListCurrent(ctx context.Context) ([]Response, error)
}

type UpdateRequest struct {
	MetricKey string  `json:"-"`
	Warning   float64 `json:"warning"`
	Critical  float64 `json:"critical"`
	Actor     string  `json:"actor,omitempty"`
}

type Response struct {
	ID        string    `json:"id"`
	MetricKey string    `json:"metric_key"`
	Warning   float64   `json:"warning"`
	Critical  float64   `json:"critical"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

var (
	ErrInvalidMetricKey = errors.New("invalid_metric_key")
	ErrInvalidWarning   = errors.New("invalid_warning_threshold")
	ErrInvalidCritical  = errors.New("invalid_critical_threshold")
	ErrInvalidOrder     = errors.New("warning_must_be_below_critical")
	ErrNotFound         = errors.New("threshold_not_found")
)

// NormalizeKey lower-cases and trims a metric key.
func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func ToResponse(t *Threshold) Response {
	resp := Response{
		ID:        t.ID.String(),
		MetricKey: t.MetricKey,
		Warning:   t.Warning,
		Critical:  t.Critical,
		CreatedAt: t.CreatedAt,
	}
	if t.Actor != nil {
		resp.Actor = *t.Actor
	}
	return resp
}
