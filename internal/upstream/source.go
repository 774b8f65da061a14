package upstream

import (
	"context"
	"time"
)

// Source returns business events for a half-open [from, to) window.
type Source interface {
	ClosedSessions(ctx context.Context, from, to time.Time) ([]Session, error)
	Orders(ctx context.Context, from, to time.Time) ([]Order, error)
	LiveMetrics(ctx context.Context) ([]LiveMetric, error)
}

const (
	EndpointSessions    = "sessions"
	EndpointOrders      = "orders"
	EndpointLiveMetrics = "live_metrics"
)
