package upstream

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testPolicy(attempts int, timeout time.Duration) *Policy {
	return newPolicy(config.UpstreamConfig{
		MaxAttempts:    attempts,
		Timeout:        timeout,
		InitialBackoff: time.Millisecond,
	}, zap.NewNop(), nil)
}

func TestFetchRetriesTransientErrors(t *testing.T) {
	var calls int32
	items, degraded := Fetch(context.Background(), testPolicy(3, time.Second), EndpointOrders, func(ctx context.Context) ([]int, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return nil, errors.New("connection reset")
		}
		return []int{1, 2}, nil
	})
	assert.False(t, degraded)
	assert.Equal(t, []int{1, 2}, items)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestFetchDegradesAfterMaxAttempts(t *testing.T) {
	var calls int32
	items, degraded := Fetch(context.Background(), testPolicy(2, time.Second), EndpointSessions, func(ctx context.Context) ([]Session, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &HTTPError{Endpoint: EndpointSessions, StatusCode: http.StatusBadGateway}
	})
	assert.True(t, degraded)
	require.NotNil(t, items)
	assert.Empty(t, items)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	_, degraded := Fetch(context.Background(), testPolicy(5, time.Second), EndpointOrders, func(ctx context.Context) ([]Order, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &HTTPError{Endpoint: EndpointOrders, StatusCode: http.StatusUnauthorized}
	})
	assert.True(t, degraded)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFetchBoundsEachAttemptWithTimeout(t *testing.T) {
	start := time.Now()
	items, degraded := Fetch(context.Background(), testPolicy(1, 20*time.Millisecond), EndpointOrders, func(ctx context.Context) ([]Order, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	assert.True(t, degraded)
	assert.Empty(t, items)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFetchNilResultBecomesEmpty(t *testing.T) {
	items, degraded := Fetch(context.Background(), testPolicy(1, time.Second), EndpointLiveMetrics, func(ctx context.Context) ([]LiveMetric, error) {
		return nil, nil
	})
	assert.False(t, degraded)
	assert.NotNil(t, items)
}

func TestDegradeReason(t *testing.T) {
	assert.Equal(t, "timeout", degradeReason(context.DeadlineExceeded))
	assert.Equal(t, "client_error", degradeReason(&HTTPError{StatusCode: 404}))
	assert.Equal(t, "server_error", degradeReason(&HTTPError{StatusCode: 503}))
	assert.Equal(t, "transport", degradeReason(errors.New("dial tcp")))
}
