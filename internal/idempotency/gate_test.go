package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func sequence(ids ...string) (func(context.Context) (string, error), *int) {
	calls := 0
	return func(context.Context) (string, error) {
		id := ids[calls%len(ids)]
		calls++
		return id, nil
	}, &calls
}

func TestGateBlankKeyAlwaysRunsNext(t *testing.T) {
	gate := NewGate(NewMemoryStore(nil), time.Minute, zap.NewNop(), nil)
	next, calls := sequence("a", "b")

	first, err := gate.Guard(context.Background(), "  ", next)
	require.NoError(t, err)
	second, err := gate.Guard(context.Background(), "", next)
	require.NoError(t, err)

	require.Equal(t, 2, *calls)
	require.Equal(t, "a", first.JobID)
	require.Equal(t, "b", second.JobID)
	require.False(t, second.Duplicate)
}

func TestGateReturnsSameJobWithinTTL(t *testing.T) {
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	gate := NewGate(NewMemoryStore(clk), 300*time.Second, zap.NewNop(), nil)
	next, calls := sequence("job-1", "job-2")

	first, err := gate.Guard(context.Background(), "k1", next)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	clk.Advance(299 * time.Second)
	second, err := gate.Guard(context.Background(), "k1", next)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, "job-1", second.JobID)
	require.Equal(t, 1, *calls)

	clk.Advance(2 * time.Second)
	third, err := gate.Guard(context.Background(), "k1", next)
	require.NoError(t, err)
	require.False(t, third.Duplicate)
	require.Equal(t, "job-2", third.JobID)
}

func TestGateDoesNotRegisterFailures(t *testing.T) {
	gate := NewGate(NewMemoryStore(nil), time.Minute, zap.NewNop(), nil)

	_, err := gate.Guard(context.Background(), "k1", func(context.Context) (string, error) {
		return "", errors.New("insert failed")
	})
	require.Error(t, err)

	res, err := gate.Guard(context.Background(), "k1", func(context.Context) (string, error) {
		return "job-9", nil
	})
	require.NoError(t, err)
	require.Equal(t, "job-9", res.JobID)
	require.False(t, res.Duplicate)
}

type brokenStore struct{}

func (brokenStore) Lookup(context.Context, string) (string, error) {
	return "", errors.New("redis down")
}

func (brokenStore) SetIfAbsent(context.Context, string, string, time.Duration) (string, bool, error) {
	return "", false, errors.New("redis down")
}

func TestGateFailsOpen(t *testing.T) {
	gate := NewGate(brokenStore{}, time.Minute, zap.NewNop(), nil)
	next, calls := sequence("job-1", "job-2")

	first, err := gate.Guard(context.Background(), "k1", next)
	require.NoError(t, err)
	second, err := gate.Guard(context.Background(), "k1", next)
	require.NoError(t, err)

	require.Equal(t, 2, *calls)
	require.Equal(t, "job-1", first.JobID)
	require.Equal(t, "job-2", second.JobID)
}

type racingStore struct {
	*MemoryStore
}

// Lookup always misses, as if a concurrent request registered between the
// lookup and the write.
func (racingStore) Lookup(context.Context, string) (string, error) {
	return "", nil
}

func TestGateLosingRaceReturnsRegisteredID(t *testing.T) {
	store := racingStore{MemoryStore: NewMemoryStore(nil)}
	_, _, err := store.SetIfAbsent(context.Background(), "k1", "winner", time.Minute)
	require.NoError(t, err)

	gate := NewGate(store, time.Minute, zap.NewNop(), nil)
	res, err := gate.Guard(context.Background(), "k1", func(context.Context) (string, error) {
		return "loser", nil
	})
	require.NoError(t, err)
	require.True(t, res.Duplicate)
	require.Equal(t, "winner", res.JobID)
}
