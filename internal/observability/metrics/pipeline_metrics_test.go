package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

func TestClassifyJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  context.DeadlineExceeded,
			want: JobReasonDeadlineExceeded,
		},
		{
			name: "wrapped_deadline",
			err:  fmt.Errorf("fetch orders: %w", context.DeadlineExceeded),
			want: JobReasonDeadlineExceeded,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: JobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: JobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: JobReasonUniqueViolation,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: JobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestClassifyErrorType(t *testing.T) {
	if got := ClassifyErrorType(&pgconn.PgError{Code: "23505"}); got != ErrorTypeDB {
		t.Fatalf("expected db error type, got %q", got)
	}
	if got := ClassifyErrorType(gorm.ErrRecordNotFound); got != ErrorTypeBusinessRule {
		t.Fatalf("expected business rule for not found, got %q", got)
	}
	if got := ClassifyErrorType(nil); got != ErrorTypeUnknown {
		t.Fatalf("expected unknown for nil, got %q", got)
	}
}

func TestPipelineCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newPipelineMetrics(registry, Config{
		ServiceName: "opspulse",
		Environment: "test",
	})

	m.IncJobRun("exports.run")
	m.IncJobRun("exports.run")
	m.IncJobError("exports.run", &pgconn.PgError{Code: "40001"})
	m.IncJobDeadLetter("exports.run")
	m.IncEnqueued("snapshots.daily", "timer")
	m.AddLeasesReaped(0)
	m.AddLeasesReaped(2)

	if got := testutil.ToFloat64(m.jobRuns.WithLabelValues("exports.run")); got != 2 {
		t.Fatalf("expected 2 runs, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("exports.run", JobReasonSerializationFailure)); got != 1 {
		t.Fatalf("expected 1 serialization error, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobDeadLetters.WithLabelValues("exports.run")); got != 1 {
		t.Fatalf("expected 1 dead letter, got %v", got)
	}
	if got := testutil.ToFloat64(m.enqueued.WithLabelValues("snapshots.daily", "timer")); got != 1 {
		t.Fatalf("expected 1 enqueue, got %v", got)
	}
	if got := testutil.ToFloat64(m.leasesReaped); got != 2 {
		t.Fatalf("expected 2 reaped leases, got %v", got)
	}
}

func TestNilPipelineMetricsIsSafe(t *testing.T) {
	var m *PipelineMetrics
	m.IncJobRun("x")
	m.IncJobError("x", errors.New("boom"))
	m.ObserveClaimLag(-1)
	m.SetTimersRunning(3)
}
