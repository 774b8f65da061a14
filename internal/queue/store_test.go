package queue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC))
	store := NewStore(StoreParams{
		DB:    dbtest.Open(t, &Job{}),
		GenID: node,
		Clock: clk,
	})
	return store, clk
}

func TestEnqueueAppliesDefaults(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	job, err := store.Enqueue(ctx, "snapshots.daily", map[string]string{"date": "2026-03-09"}, EnqueueOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Equal(t, DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, DefaultBackoff.Milliseconds(), job.BackoffMs)
	assert.True(t, job.VisibleAt.Equal(clk.Now()))

	var payload struct {
		Date string `json:"date"`
	}
	require.NoError(t, job.Decode(&payload))
	assert.Equal(t, "2026-03-09", payload.Date)

	_, err = store.Enqueue(ctx, "  ", nil, EnqueueOptions{})
	assert.ErrorIs(t, err, ErrInvalidQueue)
}

func TestClaimHonoursVisibilityAndQueueFilter(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, "exports.run", nil, EnqueueOptions{Delay: time.Minute})
	require.NoError(t, err)
	_, err = store.Enqueue(ctx, "other", nil, EnqueueOptions{})
	require.NoError(t, err)

	job, err := store.Claim(ctx, []string{"exports.run"}, "w1", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, job, "delayed job must not be visible yet")

	clk.Advance(time.Minute)
	job, err = store.Claim(ctx, []string{"exports.run"}, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, StatusRunning, job.Status)
	assert.Equal(t, 1, job.Attempts)
	assert.Equal(t, "w1", job.LeaseOwner)

	again, err := store.Claim(ctx, []string{"exports.run"}, "w2", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, again, "leased job must not be handed out twice")
}

func TestNackBacksOffExponentiallyThenDeadLetters(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	created, err := store.Enqueue(ctx, "alerts.evaluate", nil, EnqueueOptions{MaxAttempts: 3, Backoff: 2 * time.Second})
	require.NoError(t, err)

	expected := []time.Duration{2 * time.Second, 4 * time.Second}
	for i, delay := range expected {
		job, err := store.Claim(ctx, []string{"alerts.evaluate"}, "w1", time.Minute)
		require.NoError(t, err)
		require.NotNil(t, job, "attempt %d", i+1)

		dead, err := store.Nack(ctx, job, errors.New("upstream down"))
		require.NoError(t, err)
		assert.False(t, dead)
		assert.True(t, job.VisibleAt.Equal(clk.Now().Add(delay)), "attempt %d visible at %s", i+1, job.VisibleAt)

		clk.Advance(delay)
	}

	job, err := store.Claim(ctx, []string{"alerts.evaluate"}, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.True(t, job.FinalAttempt())

	dead, err := store.Nack(ctx, job, errors.New("upstream down"))
	require.NoError(t, err)
	assert.True(t, dead)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, stored.Status)
	assert.Equal(t, 3, stored.Attempts)
	assert.Equal(t, "upstream down", stored.LastError)
}

func TestAckRequiresCurrentLease(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	_, err := store.Enqueue(ctx, "exports.run", nil, EnqueueOptions{MaxAttempts: 2})
	require.NoError(t, err)

	first, err := store.Claim(ctx, []string{"exports.run"}, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, first)

	// Lease expires and another worker takes over.
	clk.Advance(2 * time.Minute)
	second, err := store.Claim(ctx, []string{"exports.run"}, "w2", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, 2, second.Attempts)

	assert.ErrorIs(t, store.Ack(ctx, first), ErrLeaseLost)
	require.NoError(t, store.Ack(ctx, second))
}

func TestReapExpiredDeadLettersFinalAttempt(t *testing.T) {
	store, clk := newTestStore(t)
	ctx := context.Background()

	created, err := store.Enqueue(ctx, "exports.run", nil, EnqueueOptions{MaxAttempts: 1})
	require.NoError(t, err)
	job, err := store.Claim(ctx, []string{"exports.run"}, "w1", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, job)

	reaped, err := store.ReapExpired(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, reaped, "lease still valid")

	clk.Advance(time.Minute)
	reaped, err = store.ReapExpired(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reaped, 1)
	assert.Equal(t, created.ID, reaped[0].ID)

	stored, err := store.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusDead, stored.Status)
}

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, 2*time.Second, retryDelay(2000, 1))
	assert.Equal(t, 4*time.Second, retryDelay(2000, 2))
	assert.Equal(t, 8*time.Second, retryDelay(2000, 3))
	assert.Equal(t, DefaultBackoff, retryDelay(0, 0))
}

func TestErrorSummaryKeepsValidUTF8(t *testing.T) {
	// 1023 ASCII bytes put the 3-byte rune across the cut.
	msg := strings.Repeat("x", maxErrorLength-1) + "€ tail"
	got := errorSummary(errors.New(msg))

	assert.True(t, utf8.ValidString(got))
	assert.Equal(t, strings.Repeat("x", maxErrorLength-1), got)
	assert.Equal(t, "bad  byte", errorSummary(errors.New("bad \xff byte")))
	assert.Empty(t, errorSummary(nil))
}
