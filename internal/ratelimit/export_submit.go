package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opspulse/internal/config"
)

const keyExportSubmit = "opspulse:export:submit:%s"

// ExportSubmitLimiter throttles export submissions per requester. A nil
// limiter allows everything.
type ExportSubmitLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewExportSubmitLimiter(cfg config.Config, client *redis.Client) *ExportSubmitLimiter {
	perMinute := cfg.Export.SubmitRatePerMinute
	if client == nil || perMinute <= 0 {
		return nil
	}
	burst := cfg.Export.SubmitBurst
	if burst <= 0 {
		burst = 1
	}
	return &ExportSubmitLimiter{
		bucket: NewTokenBucket(client),
		rate:   float64(perMinute) / 60,
		burst:  burst,
	}
}

func (l *ExportSubmitLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow reports whether requester may submit now. Redis errors are returned
// alongside Allowed=true so callers can log and proceed.
func (l *ExportSubmitLimiter) Allow(ctx context.Context, requester string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	requester = strings.TrimSpace(requester)
	if requester == "" {
		requester = "anonymous"
	}
	res, err := l.bucket.Take(ctx, fmt.Sprintf(keyExportSubmit, requester), l.rate, l.burst)
	if err != nil {
		return &Result{Allowed: true}, err
	}
	return res, nil
}
