package upstream

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/smallbiznis/opspulse/internal/config"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Policy is the single retry-and-degrade rule applied to every upstream call:
// each attempt is bounded by a timeout, transient failures are retried with
// exponential backoff, and a call that still fails degrades to an empty result.
type Policy struct {
	timeout        time.Duration
	maxAttempts    uint
	initialBackoff time.Duration
	log            *zap.Logger
	metrics        *obsmetrics.Metrics
}

type PolicyParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func NewPolicy(p PolicyParams) *Policy {
	return newPolicy(p.Config.Upstream, p.Log, p.Metrics)
}

func newPolicy(cfg config.UpstreamConfig, log *zap.Logger, metrics *obsmetrics.Metrics) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	return &Policy{
		timeout:        timeout,
		maxAttempts:    uint(attempts),
		initialBackoff: initial,
		log:            log.Named("upstream.policy"),
		metrics:        metrics,
	}
}

// Fetch runs fn under the policy. It never returns nil; degraded reports
// whether the result is an empty fallback.
func Fetch[T any](ctx context.Context, p *Policy, endpoint string, fn func(context.Context) ([]T, error)) (items []T, degraded bool) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initialBackoff
	b.MaxInterval = 10 * p.initialBackoff

	items, err := backoff.Retry(ctx, func() ([]T, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		out, err := fn(attemptCtx)
		if err == nil {
			return out, nil
		}
		if !retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(p.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			obslogger.WithContext(ctx, p.log).Debug("upstream.retry",
				zap.String("endpoint", endpoint),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		reason := degradeReason(err)
		obslogger.WithContext(ctx, p.log).Warn("upstream.degraded",
			zap.String("endpoint", endpoint),
			zap.String("reason", reason),
			zap.Error(err),
		)
		p.metrics.RecordUpstreamDegraded(ctx, endpoint, reason)
		return []T{}, true
	}
	if items == nil {
		items = []T{}
	}
	return items, false
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.Retryable()
	}
	return true
}

func degradeReason(err error) string {
	var httpErr *HTTPError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &httpErr):
		if httpErr.Retryable() {
			return "server_error"
		}
		return "client_error"
	default:
		return "transport"
	}
}

// DegradingSource applies a Policy to every call of the wrapped Source.
type DegradingSource struct {
	source Source
	policy *Policy
}

func NewDegradingSource(source Source, policy *Policy) *DegradingSource {
	return &DegradingSource{source: source, policy: policy}
}

func (d *DegradingSource) ClosedSessions(ctx context.Context, from, to time.Time) ([]Session, bool) {
	return Fetch(ctx, d.policy, EndpointSessions, func(ctx context.Context) ([]Session, error) {
		return d.source.ClosedSessions(ctx, from, to)
	})
}

func (d *DegradingSource) Orders(ctx context.Context, from, to time.Time) ([]Order, bool) {
	return Fetch(ctx, d.policy, EndpointOrders, func(ctx context.Context) ([]Order, error) {
		return d.source.Orders(ctx, from, to)
	})
}

func (d *DegradingSource) LiveMetrics(ctx context.Context) ([]LiveMetric, bool) {
	return Fetch(ctx, d.policy, EndpointLiveMetrics, d.source.LiveMetrics)
}
