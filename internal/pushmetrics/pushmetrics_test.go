package pushmetrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/prometheus/prometheus/prompb"
	"github.com/shopspring/decimal"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/queue"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"github.com/smallbiznis/opspulse/pkg/db/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

func TestCollectorRefreshesGauges(t *testing.T) {
	db := dbtest.Open(t, &queue.Job{}, &exportdomain.ExportJob{}, &alertdomain.Alert{}, &snapshotdomain.Snapshot{})
	clk := clock.NewFakeClock(time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC))
	now := clk.Now()

	jobs := []queue.Job{
		{ID: snowflake.ID(1), Queue: "exports.run", Status: queue.StatusQueued, VisibleAt: now},
		{ID: snowflake.ID(2), Queue: "exports.run", Status: queue.StatusQueued, VisibleAt: now},
		{ID: snowflake.ID(3), Queue: "snapshots.daily", Status: queue.StatusDead, VisibleAt: now},
	}
	require.NoError(t, db.Create(&jobs).Error)

	exports := []exportdomain.ExportJob{
		{ID: "01A", ReportType: exportdomain.ReportSnapshots, DateFrom: "2024-03-01", DateTo: "2024-03-02", Format: exportdomain.FormatCSV, Status: exportdomain.StatusCompleted, CreatedAt: now, UpdatedAt: now},
		{ID: "01B", ReportType: exportdomain.ReportSnapshots, DateFrom: "2024-03-01", DateTo: "2024-03-02", Format: exportdomain.FormatCSV, Status: exportdomain.StatusFailed, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&exports).Error)

	alerts := []alertdomain.Alert{
		{ID: snowflake.ID(10), MetricType: "wait_time", AffectedItem: "t1", Value: "12", Severity: alertdomain.SeverityCritical, State: alertdomain.StatePending, CreatedAt: now.Add(-time.Hour)},
		{ID: snowflake.ID(11), MetricType: "wait_time", AffectedItem: "t2", Value: "7", Severity: alertdomain.SeverityWarning, State: alertdomain.StatePending, CreatedAt: now.Add(-48 * time.Hour)},
	}
	require.NoError(t, db.Create(&alerts).Error)

	snapshots := []snapshotdomain.Snapshot{
		{ID: snowflake.ID(20), SnapshotDate: "2024-03-08", Status: snapshotdomain.StatusOK, TotalRevenue: decimal.Zero, AvgServiceMinutes: decimal.Zero, RotationIndex: decimal.Zero, AvgTicket: decimal.Zero, CreatedAt: now, UpdatedAt: now},
		{ID: snowflake.ID(21), SnapshotDate: "2024-03-09", Status: snapshotdomain.StatusNoData, TotalRevenue: decimal.Zero, AvgServiceMinutes: decimal.Zero, RotationIndex: decimal.Zero, AvgTicket: decimal.Zero, CreatedAt: now, UpdatedAt: now},
	}
	require.NoError(t, db.Create(&snapshots).Error)

	collector := NewCollector(db, clk)
	require.NoError(t, collector.Collect(context.Background()))

	assert.Equal(t, 2.0, testutil.ToFloat64(collector.queueJobs.WithLabelValues("exports.run", "queued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.queueJobs.WithLabelValues("snapshots.daily", "dead")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.exportJobs.WithLabelValues("FAILED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.recentAlerts.WithLabelValues("CRITICAL")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.recentAlerts))
	assert.Equal(t, float64(time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC).Unix()), testutil.ToFloat64(collector.latestDay))
	assert.Equal(t, float64(now.Unix()), testutil.ToFloat64(collector.lastCollected))

	// Drained states drop out on the next pass.
	require.NoError(t, db.Exec(`DELETE FROM queue_jobs WHERE queue = ?`, "snapshots.daily").Error)
	require.NoError(t, collector.Collect(context.Background()))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.queueJobs))
}

func TestPushgatewayPusher(t *testing.T) {
	var method, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		_, _ = io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "opspulse_test_gauge", Help: "test"})
	registry.MustRegister(gauge)
	gauge.Set(3)

	pusher := NewPushgatewayPusher(srv.URL, "opspulse", map[string]string{"environment": "test", "empty": ""})
	require.NoError(t, pusher.Push(context.Background(), registry))
	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/metrics/job/opspulse/environment/test", path)

	err := NewPushgatewayPusher(srv.URL, " ", nil).Push(context.Background(), registry)
	require.Error(t, err)
}

func TestRemoteWritePusher(t *testing.T) {
	var got prompb.WriteRequest
	var auth, encoding string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		encoding = r.Header.Get("Content-Encoding")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err := proto.Unmarshal(raw, protoadapt.MessageV2Of(&got)); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "opspulse_export_jobs", Help: "test"}, []string{"status"})
	registry.MustRegister(vec)
	vec.WithLabelValues("PENDING").Set(4)
	registry.MustRegister(prometheus.NewHistogram(prometheus.HistogramOpts{Name: "opspulse_ignored_seconds", Help: "test"}))

	pusher := NewRemoteWritePusher(srv.URL, "secret", nil)
	pusher.now = func() time.Time { return time.UnixMilli(1700000000000) }
	require.NoError(t, pusher.Push(context.Background(), registry))

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "snappy", encoding)
	require.Len(t, got.Timeseries, 1)
	series := got.Timeseries[0]
	require.Len(t, series.Labels, 2)
	assert.Equal(t, "__name__", series.Labels[0].Name)
	assert.Equal(t, "opspulse_export_jobs", series.Labels[0].Value)
	assert.Equal(t, "status", series.Labels[1].Name)
	require.Len(t, series.Samples, 1)
	assert.Equal(t, 4.0, series.Samples[0].Value)
	assert.Equal(t, int64(1700000000000), series.Samples[0].Timestamp)
}

func TestRemoteWriteSeriesAddsExternalLabels(t *testing.T) {
	registry := prometheus.NewRegistry()
	vec := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: "opspulse_queue_jobs", Help: "test"}, []string{"queue", "job"})
	registry.MustRegister(vec)
	vec.WithLabelValues("exports.run", "inner").Set(2)

	families, err := registry.Gather()
	require.NoError(t, err)

	pusher := NewRemoteWritePusher("http://unused", "", map[string]string{"job": "opspulse-worker", "environment": "prod", "instance": ""})
	series := pusher.series(families, 1)
	require.Len(t, series, 1)

	got := map[string]string{}
	names := make([]string, 0, len(series[0].Labels))
	for _, l := range series[0].Labels {
		got[l.Name] = l.Value
		names = append(names, l.Name)
	}
	assert.Equal(t, []string{"__name__", "environment", "job", "queue"}, names)
	assert.Equal(t, "inner", got["job"], "metric labels win over external labels")
	assert.Equal(t, "prod", got["environment"])
}

func TestRemoteWritePusherReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "opspulse_test_total", Help: "test"})
	registry.MustRegister(counter)
	counter.Inc()

	err := NewRemoteWritePusher(srv.URL, "", nil).Push(context.Background(), registry)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewPusher(t *testing.T) {
	log := zap.NewNop()

	cfg := config.Config{AppName: "opspulse"}
	assert.Nil(t, NewPusher(cfg, log))

	cfg.PushMetrics = config.PushMetricsConfig{Exporter: ExporterPushgateway, Endpoint: "http://gateway:9091"}
	assert.IsType(t, &PushgatewayPusher{}, NewPusher(cfg, log))

	cfg.PushMetrics = config.PushMetricsConfig{Exporter: ExporterRemoteWrite, Endpoint: "http://prom:9090/api/v1/write"}
	assert.IsType(t, &RemoteWritePusher{}, NewPusher(cfg, log))

	cfg.PushMetrics = config.PushMetricsConfig{Exporter: ExporterRemoteWrite, Endpoint: "not a url"}
	assert.Nil(t, NewPusher(cfg, log))

	cfg.PushMetrics = config.PushMetricsConfig{Exporter: "statsd", Endpoint: "localhost:8125"}
	assert.Nil(t, NewPusher(cfg, log))
}
