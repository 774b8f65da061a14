package idempotency

import (
	"context"
	"strings"
	"time"

	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"go.uber.org/zap"
)

const DefaultTTL = 300 * time.Second

// Result is what Guard returns to the caller. Duplicate is true when JobID
// was produced by an earlier request with the same key.
type Result struct {
	JobID     string
	Duplicate bool
}

// Gate deduplicates submissions by a caller supplied key. It is best effort:
// store failures never reject a request.
type Gate struct {
	store   Store
	ttl     time.Duration
	log     *zap.Logger
	metrics *obsmetrics.Metrics
}

func NewGate(store Store, ttl time.Duration, log *zap.Logger, metrics *obsmetrics.Metrics) *Gate {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{store: store, ttl: ttl, log: log.Named("idempotency.gate"), metrics: metrics}
}

// Guard runs next unless key already maps to a job id.
func (g *Gate) Guard(ctx context.Context, key string, next func(ctx context.Context) (string, error)) (Result, error) {
	key = strings.TrimSpace(key)
	if key == "" || g.store == nil {
		jobID, err := next(ctx)
		return Result{JobID: jobID}, err
	}

	existing, err := g.store.Lookup(ctx, key)
	switch {
	case err != nil:
		g.log.Warn("idempotency lookup failed, continuing without dedup", zap.String("key", key), zap.Error(err))
		g.metrics.RecordIdempotencyLookup(ctx, "fail_open")
	case existing != "":
		g.metrics.RecordIdempotencyLookup(ctx, "hit")
		return Result{JobID: existing, Duplicate: true}, nil
	default:
		g.metrics.RecordIdempotencyLookup(ctx, "miss")
	}

	jobID, err := next(ctx)
	if err != nil {
		return Result{}, err
	}

	registered, _, err := g.store.SetIfAbsent(ctx, key, jobID, g.ttl)
	if err != nil {
		g.log.Warn("idempotency register failed", zap.String("key", key), zap.String("job_id", jobID), zap.Error(err))
		return Result{JobID: jobID}, nil
	}
	if registered != "" && registered != jobID {
		return Result{JobID: registered, Duplicate: true}, nil
	}
	return Result{JobID: jobID}, nil
}
