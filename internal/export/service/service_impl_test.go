package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/export/repository"
	"github.com/smallbiznis/opspulse/internal/idempotency"
	"github.com/smallbiznis/opspulse/internal/queue"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"github.com/smallbiznis/opspulse/internal/storage"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"github.com/smallbiznis/opspulse/pkg/db/dbtest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []exportdomain.JobPayload
	err      error
	onSubmit func(jobID string)
}

func (f *fakeSubmitter) Submit(_ context.Context, name string, payload any) (*queue.Job, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := payload.(exportdomain.JobPayload)
	f.mu.Lock()
	f.payloads = append(f.payloads, p)
	hook := f.onSubmit
	f.mu.Unlock()
	if hook != nil {
		hook(p.JobID)
	}
	return &queue.Job{Queue: name, Status: queue.StatusQueued}, nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

type failingStore struct{}

func (failingStore) Upload(context.Context, string, string, io.Reader) (int64, error) {
	return 0, errors.New("bucket unavailable")
}

func (failingStore) SignedURL(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("bucket unavailable")
}

type fixture struct {
	db        *gorm.DB
	svc       exportdomain.Service
	submitter *fakeSubmitter
	objects   *storage.MemoryStore
	clock     *clock.FakeClock
}

func testConfig() config.Config {
	return config.Config{
		Export: config.ExportConfig{
			BatchSize:      2,
			MaxRangeDays:   31,
			WaitAttempts:   3,
			WaitInterval:   5 * time.Millisecond,
			IdempotencyTTL: 300 * time.Second,
			MaxPDFRows:     100,
		},
		Storage: config.StorageConfig{SignedURLTTL: time.Hour},
	}
}

func newFixture(t *testing.T, store storage.ObjectStore, opts ...func(*config.Config)) *fixture {
	t.Helper()
	db := dbtest.Open(t,
		&exportdomain.ExportJob{},
		&snapshotdomain.Snapshot{},
		&alertdomain.Alert{},
		&thresholddomain.Threshold{},
	)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	objects := storage.NewMemoryStore(clk)
	if store == nil {
		store = objects
	}
	submitter := &fakeSubmitter{}
	cfg := testConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	svc := New(Params{
		DB:        db,
		Log:       zap.NewNop(),
		Repo:      repository.Provide(),
		Gate:      idempotency.NewGate(idempotency.NewMemoryStore(clk), cfg.Export.IdempotencyTTL, zap.NewNop(), nil),
		Submitter: submitter,
		Store:     store,
		Clock:     clk,
		Config:    cfg,
	})
	return &fixture{db: db, svc: svc, submitter: submitter, objects: objects, clock: clk}
}

func (f *fixture) seedSnapshots(t *testing.T, dates ...string) {
	t.Helper()
	node, err := snowflake.NewNode(7)
	require.NoError(t, err)
	for i, d := range dates {
		require.NoError(t, f.db.Create(&snapshotdomain.Snapshot{
			ID:                node.Generate(),
			SnapshotDate:      d,
			TotalRevenue:      decimal.NewFromInt(int64(100 * (i + 1))),
			TotalOrders:       int64(i + 1),
			AvgServiceMinutes: decimal.NewFromInt(15),
			RotationIndex:     decimal.RequireFromString("0.75"),
			AvgTicket:         decimal.NewFromInt(100),
			Status:            snapshotdomain.StatusOK,
			CreatedAt:         f.clock.Now(),
			UpdatedAt:         f.clock.Now(),
		}).Error)
	}
}

func snapshotRequest() exportdomain.SubmitRequest {
	return exportdomain.SubmitRequest{ReportType: "snapshots", From: "2026-03-01", To: "2026-03-31", Format: "csv", RequestedBy: "ops@example.com"}
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t, nil)
	cases := []struct {
		name string
		req  exportdomain.SubmitRequest
		want error
	}{
		{"report type", exportdomain.SubmitRequest{ReportType: "orders", From: "2026-03-01", To: "2026-03-02", Format: "csv"}, exportdomain.ErrInvalidReportType},
		{"format", exportdomain.SubmitRequest{ReportType: "alerts", From: "2026-03-01", To: "2026-03-02", Format: "docx"}, exportdomain.ErrInvalidFormat},
		{"date", exportdomain.SubmitRequest{ReportType: "alerts", From: "03/01/2026", To: "2026-03-02", Format: "csv"}, exportdomain.ErrInvalidDate},
		{"reversed", exportdomain.SubmitRequest{ReportType: "alerts", From: "2026-03-05", To: "2026-03-02", Format: "csv"}, exportdomain.ErrInvalidRange},
		{"too large", exportdomain.SubmitRequest{ReportType: "alerts", From: "2026-01-01", To: "2026-03-02", Format: "csv"}, exportdomain.ErrRangeTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Submit(context.Background(), tc.req, "")
			require.ErrorIs(t, err, tc.want)
		})
	}
	require.Equal(t, 0, f.submitter.count())
}

func TestSubmitRecordsPendingJob(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.Submit(context.Background(), snapshotRequest(), "")
	require.NoError(t, err)
	require.Len(t, res.JobID, 26)
	require.False(t, res.Duplicate)
	require.Equal(t, 1, f.submitter.count())
	require.Equal(t, res.JobID, f.submitter.payloads[0].JobID)

	view, err := f.svc.Status(context.Background(), res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusPending, view.Status)
	require.Equal(t, 0, view.Progress)
}

func TestStatusUnknownJobIsPending(t *testing.T) {
	f := newFixture(t, nil)

	view, err := f.svc.Status(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ")
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusPending, view.Status)

	_, err = f.svc.Status(context.Background(), " ")
	require.ErrorIs(t, err, exportdomain.ErrInvalidJobID)
}

func TestIdempotentSubmitWithinTTL(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	first, err := f.svc.Submit(ctx, snapshotRequest(), "K")
	require.NoError(t, err)
	second, err := f.svc.Submit(ctx, snapshotRequest(), "K")
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.True(t, second.Duplicate)
	require.Equal(t, 1, f.submitter.count())

	f.clock.Advance(301 * time.Second)
	third, err := f.svc.Submit(ctx, snapshotRequest(), "K")
	require.NoError(t, err)
	require.NotEqual(t, first.JobID, third.JobID)
	require.False(t, third.Duplicate)
	require.Equal(t, 2, f.submitter.count())
}

func TestEnqueueFailureMarksJobFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.submitter.err = errors.New("queue down")

	_, err := f.svc.Submit(context.Background(), snapshotRequest(), "")
	require.Error(t, err)

	var jobs []exportdomain.ExportJob
	require.NoError(t, f.db.Find(&jobs).Error)
	require.Len(t, jobs, 1)
	require.Equal(t, exportdomain.StatusFailed, jobs[0].Status)
	require.Contains(t, jobs[0].Error, "queue down")
}

func TestRunStreamsSnapshotsInBatches(t *testing.T) {
	f := newFixture(t, nil)
	f.seedSnapshots(t, "2026-02-28", "2026-03-01", "2026-03-02", "2026-03-03")
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, snapshotRequest(), "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Run(ctx, res.JobID, false))

	view, err := f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusCompleted, view.Status)
	require.Equal(t, 100, view.Progress)
	require.EqualValues(t, 3, view.RowsWritten)
	require.NotEmpty(t, view.DownloadURL)
	require.NotNil(t, view.URLExpiresAt)

	job := &exportdomain.ExportJob{ID: res.JobID, ReportType: exportdomain.ReportSnapshots, DateFrom: "2026-03-01", DateTo: "2026-03-31", Format: exportdomain.FormatCSV}
	obj, ok := f.objects.Get(objectKey(job))
	require.True(t, ok)
	require.Equal(t, "text/csv", obj.ContentType)
	lines := strings.Split(strings.TrimSpace(string(obj.Data)), "\n")
	require.Len(t, lines, 4)
	require.True(t, strings.HasPrefix(lines[0], "snapshot_date,total_revenue"))
	require.True(t, strings.HasPrefix(lines[1], "2026-03-01,200"))
	require.True(t, strings.HasPrefix(lines[3], "2026-03-03,400"))

	// Terminal jobs are left untouched.
	require.NoError(t, f.svc.Run(ctx, res.JobID, true))
	require.NoError(t, f.svc.Fail(ctx, res.JobID, "late failure"))
	view, err = f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusCompleted, view.Status)
}

func TestRunExportsAlertsAcrossEqualTimestamps(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 5; i++ {
		require.NoError(t, f.db.Create(&alertdomain.Alert{
			ID:           snowflake.ID(i),
			MetricType:   "avg_ticket",
			AffectedItem: "store-1",
			Value:        "42",
			Severity:     alertdomain.SeverityWarning,
			State:        alertdomain.StatePending,
			CreatedAt:    at,
		}).Error)
	}
	require.NoError(t, f.db.Create(&alertdomain.Alert{
		ID: 99, MetricType: "avg_ticket", AffectedItem: "store-1", Value: "1",
		Severity: alertdomain.SeverityInfo, State: alertdomain.StatePending,
		CreatedAt: time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC),
	}).Error)

	res, err := f.svc.Submit(ctx, exportdomain.SubmitRequest{ReportType: "alerts", From: "2026-03-01", To: "2026-03-03", Format: "csv"}, "")
	require.NoError(t, err)
	require.NoError(t, f.svc.Run(ctx, res.JobID, false))

	view, err := f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusCompleted, view.Status)
	require.EqualValues(t, 5, view.RowsWritten)
}

func TestUploadFailureEndsFailed(t *testing.T) {
	f := newFixture(t, failingStore{})
	f.seedSnapshots(t, "2026-03-01", "2026-03-02", "2026-03-03")
	ctx := context.Background()

	res, err := f.svc.Submit(ctx, snapshotRequest(), "")
	require.NoError(t, err)

	require.Error(t, f.svc.Run(ctx, res.JobID, false))
	view, err := f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusProcessing, view.Status)

	require.Error(t, f.svc.Run(ctx, res.JobID, true))
	view, err = f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusFailed, view.Status)
	require.Contains(t, view.Error, "bucket unavailable")
	require.Empty(t, view.DownloadURL)
}

func TestSubmitAndWaitReturnsTerminalResult(t *testing.T) {
	f := newFixture(t, nil, func(cfg *config.Config) {
		cfg.Export.WaitAttempts = 200
		cfg.Export.WaitInterval = 50 * time.Millisecond
	})
	f.seedSnapshots(t, "2026-03-01")
	f.submitter.onSubmit = func(jobID string) {
		go func() { _ = f.svc.Run(context.Background(), jobID, true) }()
	}

	res, err := f.svc.SubmitAndWait(context.Background(), snapshotRequest(), "")
	require.NoError(t, err)
	require.NotNil(t, res.Status)
	require.Equal(t, exportdomain.StatusCompleted, res.Status.Status)
	require.EqualValues(t, 1, res.Status.RowsWritten)
}

func TestSubmitAndWaitFallsBackToProcessing(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.svc.SubmitAndWait(context.Background(), snapshotRequest(), "")
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusProcessing, res.Status.Status)
	require.NotEmpty(t, res.JobID)
}

func TestRunJobDeadLetterMarksFailed(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	res, err := f.svc.Submit(ctx, snapshotRequest(), "")
	require.NoError(t, err)

	h := NewRunJob(f.svc, zap.NewNop())
	qjob := &queue.Job{Queue: exportdomain.RunQueue, Payload: []byte(`{"job_id":"` + res.JobID + `"}`)}
	h.OnDeadLetter(ctx, qjob, errors.New("exports.run: context deadline exceeded"))

	view, err := f.svc.Status(ctx, res.JobID)
	require.NoError(t, err)
	require.Equal(t, exportdomain.StatusFailed, view.Status)
	require.Contains(t, view.Error, "deadline")

	require.NoError(t, h.Handle(ctx, &queue.Job{Queue: exportdomain.RunQueue, Payload: []byte(`{"job_id":""}`)}))
}

func TestSummarizeTruncatesOnRuneBoundary(t *testing.T) {
	msg := strings.Repeat("e", maxErrorLen-2) + "日本"
	got := summarize(errors.New(msg))
	require.True(t, utf8.ValidString(got))
	require.Equal(t, strings.Repeat("e", maxErrorLen-2), got)

	require.Equal(t, "unknown error", summarize(errors.New(" \xff ")))
	require.Equal(t, "unknown error", summarize(nil))
}
