package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/config"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/notification"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"github.com/smallbiznis/opspulse/pkg/db/pagination"
	"gorm.io/gorm"
)

type fakeSnapshotService struct {
	computed []string
}

func (f *fakeSnapshotService) ComputeAndPersistDailySnapshot(ctx context.Context, date string) (*snapshotdomain.Response, error) {
	if _, err := snapshotdomain.ParseDate(date); err != nil {
		return nil, err
	}
	f.computed = append(f.computed, date)
	return &snapshotdomain.Response{SnapshotDate: date, Status: snapshotdomain.StatusOK}, nil
}

func (f *fakeSnapshotService) ComputePreviousDay(ctx context.Context) (*snapshotdomain.Response, bool, error) {
	return nil, false, nil
}

func (f *fakeSnapshotService) GetByDate(ctx context.Context, date string) (*snapshotdomain.Response, error) {
	return nil, snapshotdomain.ErrNotFound
}

func (f *fakeSnapshotService) List(ctx context.Context, req snapshotdomain.ListRequest) ([]snapshotdomain.Response, error) {
	return []snapshotdomain.Response{}, nil
}

type fakeThresholdService struct {
	updates []thresholddomain.UpdateRequest
}

func (f *fakeThresholdService) UpdateThreshold(ctx context.Context, req thresholddomain.UpdateRequest) (*thresholddomain.Response, error) {
	if req.Warning >= req.Critical {
		return nil, thresholddomain.ErrInvalidOrder
	}
	f.updates = append(f.updates, req)
	return &thresholddomain.Response{
		MetricKey: thresholddomain.NormalizeKey(req.MetricKey),
		Warning:   req.Warning,
		Critical:  req.Critical,
		Actor:     req.Actor,
	}, nil
}

func (f *fakeThresholdService) Current(ctx context.Context, metricKey string) (*thresholddomain.Threshold, error) {
	return nil, nil
}

func (f *fakeThresholdService) History(ctx context.Context, metricKey string, limit int) ([]thresholddomain.Response, error) {
	return []thresholddomain.Response{}, nil
}

func (f *fakeThresholdService) ListCurrent(ctx context.Context) ([]thresholddomain.Response, error) {
	return []thresholddomain.Response{}, nil
}

type fakeAlertService struct{}

func (f *fakeAlertService) EvaluateMetric(ctx context.Context, req alertdomain.EvaluateRequest) (*alertdomain.Evaluation, error) {
	eval := &alertdomain.Evaluation{MetricType: req.MetricType, AffectedItem: req.AffectedItem}
	if req.Value >= 10 {
		eval.Severity = alertdomain.SeverityCritical
		eval.Alert = &alertdomain.Response{ID: "1", MetricType: req.MetricType, Severity: alertdomain.SeverityCritical}
	}
	return eval, nil
}

func (f *fakeAlertService) List(ctx context.Context, req alertdomain.ListRequest) (*alertdomain.ListResponse, error) {
	if req.PageToken == "bogus" {
		return nil, pagination.ErrInvalidPageToken
	}
	return &alertdomain.ListResponse{Data: []alertdomain.Response{}}, nil
}

type fakeExportService struct {
	lastKey    string
	lastReq    exportdomain.SubmitRequest
	waited     bool
	duplicates map[string]string
}

func (f *fakeExportService) Submit(ctx context.Context, req exportdomain.SubmitRequest, key string) (*exportdomain.SubmitResult, error) {
	if req.ReportType != "snapshots" {
		return nil, exportdomain.ErrInvalidReportType
	}
	f.lastKey = key
	f.lastReq = req
	if id, ok := f.duplicates[key]; ok {
		return &exportdomain.SubmitResult{JobID: id, Duplicate: true}, nil
	}
	return &exportdomain.SubmitResult{
		JobID:  "01JOB",
		Status: &exportdomain.StatusView{JobID: "01JOB", Status: exportdomain.StatusPending},
	}, nil
}

func (f *fakeExportService) SubmitAndWait(ctx context.Context, req exportdomain.SubmitRequest, key string) (*exportdomain.SubmitResult, error) {
	f.waited = true
	return &exportdomain.SubmitResult{
		JobID:  "01JOB",
		Status: &exportdomain.StatusView{JobID: "01JOB", Status: exportdomain.StatusCompleted, Progress: 100},
	}, nil
}

func (f *fakeExportService) Status(ctx context.Context, jobID string) (*exportdomain.StatusView, error) {
	if jobID == "" {
		return nil, exportdomain.ErrInvalidJobID
	}
	return &exportdomain.StatusView{JobID: jobID, Status: exportdomain.StatusPending}, nil
}

func (f *fakeExportService) Run(ctx context.Context, jobID string, final bool) error { return nil }

func (f *fakeExportService) Fail(ctx context.Context, jobID string, reason string) error { return nil }

type testServer struct {
	engine    *gin.Engine
	snapshots *fakeSnapshotService
	threshold *fakeThresholdService
	exports   *fakeExportService
	hub       *notification.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())

	ts := &testServer{
		engine:    engine,
		snapshots: &fakeSnapshotService{},
		threshold: &fakeThresholdService{},
		exports:   &fakeExportService{duplicates: map[string]string{"dup-key": "01ORIGINAL"}},
		hub:       notification.NewHub(),
	}
	NewServer(ServerParams{
		Gin:          engine,
		Cfg:          config.Config{},
		SnapshotSvc:  ts.snapshots,
		ThresholdSvc: ts.threshold,
		AlertSvc:     &fakeAlertService{},
		ExportSvc:    ts.exports,
		AlertHub:     ts.hub,
	})
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, rec.Body.String())
	}
	return resp.Error
}

func TestComputeSnapshotValidatesDate(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/snapshots/2024-13-40/compute", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if len(payload.Errors) != 1 || payload.Errors[0].Code != "invalid_snapshot_date" {
		t.Fatalf("unexpected errors: %+v", payload.Errors)
	}

	rec = ts.do(http.MethodPost, "/api/snapshots/2024-03-01/compute", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.snapshots.computed) != 1 || ts.snapshots.computed[0] != "2024-03-01" {
		t.Fatalf("unexpected computed dates: %v", ts.snapshots.computed)
	}
}

func TestGetSnapshotNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/snapshots/2024-03-01", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Type != "not_found" {
		t.Fatalf("expected not_found, got %q", payload.Type)
	}
}

func TestUpdateThreshold(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPut, "/api/thresholds/Avg_Service_Minutes", `{"warning":20,"critical":30}`, map[string]string{HeaderActor: "ops@example.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(ts.threshold.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(ts.threshold.updates))
	}
	if got := ts.threshold.updates[0]; got.MetricKey != "Avg_Service_Minutes" || got.Actor != "ops@example.com" {
		t.Fatalf("unexpected update request: %+v", got)
	}

	rec = ts.do(http.MethodPut, "/api/thresholds/avg_service_minutes", `{"warning":30,"critical":20}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	payload := decodeError(t, rec)
	if payload.Errors[0].Field != "warning" {
		t.Fatalf("expected warning field, got %+v", payload.Errors[0])
	}

	rec = ts.do(http.MethodPut, "/api/thresholds/avg_service_minutes", `{"warning":30}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing critical, got %d", rec.Code)
	}
}

func TestGetThresholdMissingIsNotFound(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/thresholds/rotation_index", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = ts.do(http.MethodGet, "/api/thresholds/rotation_index/history?limit=0", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestEvaluateMetricStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/metrics/evaluate", `{"metric_type":"wait_time","affected_item":"table-4","value":12}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/metrics/evaluate", `{"metric_type":"wait_time","affected_item":"table-4","value":1}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = ts.do(http.MethodPost, "/api/metrics/evaluate", `{"metric_type":"wait_time","affected_item":"table-4"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without value, got %d", rec.Code)
	}
}

func TestListAlertsRejectsBadPageToken(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/alerts?page_token=bogus", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Errors[0].Code != "invalid_page_token" {
		t.Fatalf("unexpected error code: %+v", payload.Errors)
	}
}

func TestSubmitExport(t *testing.T) {
	ts := newTestServer(t)
	body := `{"report_type":"snapshots","date_from":"2024-01-01","date_to":"2024-01-31","format":"csv"}`

	rec := ts.do(http.MethodPost, "/api/exports", body, map[string]string{
		HeaderIdempotencyKey: " key-1 ",
		HeaderActor:          "analyst",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if ts.exports.lastKey != "key-1" {
		t.Fatalf("expected trimmed idempotency key, got %q", ts.exports.lastKey)
	}
	if ts.exports.lastReq.RequestedBy != "analyst" || ts.exports.lastReq.From != "2024-01-01" {
		t.Fatalf("unexpected submit request: %+v", ts.exports.lastReq)
	}

	rec = ts.do(http.MethodPost, "/api/exports", body, map[string]string{HeaderIdempotencyKey: "dup-key"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
	var resp struct {
		Data exportdomain.SubmitResult `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Data.Duplicate || resp.Data.JobID != "01ORIGINAL" {
		t.Fatalf("unexpected duplicate response: %+v", resp.Data)
	}
}

func TestSubmitExportWait(t *testing.T) {
	ts := newTestServer(t)
	body := `{"report_type":"snapshots","date_from":"2024-01-01","date_to":"2024-01-02","format":"xlsx"}`

	rec := ts.do(http.MethodPost, "/api/exports?wait=true", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !ts.exports.waited {
		t.Fatalf("expected SubmitAndWait to be used")
	}

	rec = ts.do(http.MethodPost, "/api/exports?wait=maybe", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestSubmitExportValidation(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/exports", `{"report_type":"invoices"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload := decodeError(t, rec); payload.Errors[0].Field != "report_type" {
		t.Fatalf("unexpected field: %+v", payload.Errors)
	}

	rec = ts.do(http.MethodPost, "/api/exports", `{`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed body, got %d", rec.Code)
	}
}

func TestGetExportStatus(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/exports/01UNKNOWN", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"PENDING"`) {
		t.Fatalf("expected PENDING status, got %s", rec.Body.String())
	}
}

func TestStreamAlertsReplaysBacklog(t *testing.T) {
	ts := newTestServer(t)

	event := alertdomain.Event{
		Alert:    alertdomain.Response{ID: "42", MetricType: "wait_time", Severity: alertdomain.SeverityWarning},
		Warning:  5,
		Critical: 10,
	}
	if err := ts.hub.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/alerts/stream?metric_type=WAIT_TIME", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ts.engine.ServeHTTP(rec, req)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not stop after cancellation")
	}

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "retry: 2000\n\n") {
		t.Fatalf("missing retry preamble: %q", body)
	}
	if !strings.Contains(body, "id: 42\nevent: alert\n") {
		t.Fatalf("missing backlog event: %q", body)
	}
}

func TestStreamAlertsWithoutHub(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(ErrorHandlingMiddleware())
	NewServer(ServerParams{
		Gin:          engine,
		SnapshotSvc:  &fakeSnapshotService{},
		ThresholdSvc: &fakeThresholdService{},
		AlertSvc:     &fakeAlertService{},
		ExportSvc:    &fakeExportService{},
	})

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/alerts/stream", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestRetryAfterSeconds(t *testing.T) {
	cases := map[time.Duration]string{
		0:                       "1",
		300 * time.Millisecond:  "1",
		1500 * time.Millisecond: "2",
		10 * time.Second:        "10",
	}
	for in, want := range cases {
		if got := retryAfterSeconds(in); got != want {
			t.Fatalf("retryAfterSeconds(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestClassifyErrorForLog(t *testing.T) {
	typ, code := classifyErrorForLog(exportdomain.ErrRangeTooLarge)
	if typ != "validation_error" || code != "export_range_too_large" {
		t.Fatalf("unexpected classification %s/%s", typ, code)
	}
	typ, code = classifyErrorForLog(ErrRateLimited)
	if typ != "rate_limited" || code != "rate_limited" {
		t.Fatalf("unexpected classification %s/%s", typ, code)
	}
}

func TestMapErrorTreatsWrappedRecordNotFoundAsNotFound(t *testing.T) {
	status, payload := mapError(fmt.Errorf("load snapshot: %w", gorm.ErrRecordNotFound))
	if status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", status)
	}
	if payload.Type != "not_found" {
		t.Fatalf("expected not_found payload, got %+v", payload)
	}

	status, _ = mapError(errors.New("connection refused"))
	if status == http.StatusNotFound {
		t.Fatalf("plain errors must not map to 404")
	}
}
