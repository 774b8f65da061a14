package domain

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/smallbiznis/opspulse/pkg/db/pagination"
)

// EvaluateQueue is the queue consumed by the live metric evaluator.
const EvaluateQueue = "alerts.evaluate"

type Service interface {
	// EvaluateMetric raises an alert when value breaches the current threshold
	// of metricType, unless an identical alert exists within the dedup window.
	EvaluateMetric(ctx context.Context, req EvaluateRequest) (*Evaluation, error)
	List(ctx context.Context, req ListRequest) (*ListResponse, error)
}

// Notifier receives raised alerts. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

type EvaluateRequest struct {
	MetricType   string  `json:"metric_type"`
	AffectedItem string  `json:"affected_item"`
	Value        float64 `json:"value"`
}

type Evaluation struct {
	MetricType   string    `json:"metric_type"`
	AffectedItem string    `json:"affected_item"`
	Severity     Severity  `json:"severity,omitempty"`
	Suppressed   bool      `json:"suppressed"`
	Alert        *Response `json:"alert,omitempty"`
}

// Raised reports whether a new alert row was written.
func (e *Evaluation) Raised() bool {
	return e != nil && e.Alert != nil
}

type ListRequest struct {
	pagination.Pagination
	MetricType   string `form:"metric_type"`
	AffectedItem string `form:"affected_item"`
	Severity     string `form:"severity"`
	From         string `form:"from"`
	To           string `form:"to"`
}

type ListResponse struct {
	Data     []Response          `json:"data"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Response struct {
	ID           string    `json:"id"`
	MetricType   string    `json:"metric_type"`
	AffectedItem string    `json:"affected_item"`
	Value        string    `json:"value"`
	Severity     Severity  `json:"severity"`
	State        State     `json:"state"`
	CreatedAt    time.Time `json:"created_at"`
}

// Event is what notification sinks receive.
type Event struct {
	Alert    Response `json:"alert"`
	Warning  float64  `json:"warning"`
	Critical float64  `json:"critical"`
}

var (
	ErrInvalidMetricType   = errors.New("invalid_metric_type")
	ErrInvalidAffectedItem = errors.New("invalid_affected_item")
	ErrInvalidValue        = errors.New("invalid_metric_value")
	ErrInvalidSeverity     = errors.New("invalid_severity")
	ErrInvalidRange        = errors.New("invalid_alert_range")
)

// ParseSeverity accepts severities case-insensitively. Empty is valid.
func ParseSeverity(value string) (Severity, error) {
	switch Severity(strings.ToUpper(strings.TrimSpace(value))) {
	case SeverityNone:
		return SeverityNone, nil
	case SeverityInfo:
		return SeverityInfo, nil
	case SeverityWarning:
		return SeverityWarning, nil
	case SeverityCritical:
		return SeverityCritical, nil
	default:
		return SeverityNone, ErrInvalidSeverity
	}
}

func ToResponse(a *Alert) Response {
	return Response{
		ID:           a.ID.String(),
		MetricType:   a.MetricType,
		AffectedItem: a.AffectedItem,
		Value:        a.Value,
		Severity:     a.Severity,
		State:        a.State,
		CreatedAt:    a.CreatedAt,
	}
}
