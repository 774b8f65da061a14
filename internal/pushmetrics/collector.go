package pushmetrics

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/opspulse/internal/clock"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"gorm.io/gorm"
)

const recentAlertWindow = 24 * time.Hour

// Collector refreshes pipeline state gauges from the database. The gauges live
// in a private registry so they never collide with the process /metrics.
type Collector struct {
	db    *gorm.DB
	clock clock.Clock

	registry      *prometheus.Registry
	queueJobs     *prometheus.GaugeVec
	exportJobs    *prometheus.GaugeVec
	recentAlerts  *prometheus.GaugeVec
	latestDay     prometheus.Gauge
	memoryUsage   prometheus.Gauge
	lastCollected prometheus.Gauge
}

func NewCollector(db *gorm.DB, clk clock.Clock) *Collector {
	if clk == nil {
		clk = clock.SystemClock{}
	}
	c := &Collector{
		db:       db,
		clock:    clk,
		registry: prometheus.NewRegistry(),
		queueJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opspulse_queue_jobs",
			Help: "Queue jobs by queue and status.",
		}, []string{"queue", "status"}),
		exportJobs: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opspulse_export_jobs",
			Help: "Export jobs by status.",
		}, []string{"status"}),
		recentAlerts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "opspulse_alerts_recent",
			Help: "Alerts raised in the last 24 hours by severity.",
		}, []string{"severity"}),
		latestDay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opspulse_snapshot_latest_timestamp_seconds",
			Help: "Start of the most recent day with an ok snapshot.",
		}),
		memoryUsage: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opspulse_process_memory_bytes",
			Help: "Memory obtained from the OS.",
		}),
		lastCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "opspulse_pushmetrics_last_collected_timestamp_seconds",
			Help: "When the gauges were last refreshed.",
		}),
	}
	c.registry.MustRegister(c.queueJobs, c.exportJobs, c.recentAlerts, c.latestDay, c.memoryUsage, c.lastCollected)
	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

type groupCount struct {
	Label  string
	Status string
	Total  int64
}

// Collect refreshes every gauge. Vectors are reset first so states that
// drained to zero disappear.
func (c *Collector) Collect(ctx context.Context) error {
	now := c.clock.Now().UTC()

	var queueRows []groupCount
	if err := c.db.WithContext(ctx).Raw(
		`SELECT queue AS label, status, COUNT(*) AS total FROM queue_jobs GROUP BY queue, status`,
	).Scan(&queueRows).Error; err != nil {
		return err
	}
	c.queueJobs.Reset()
	for _, row := range queueRows {
		c.queueJobs.WithLabelValues(row.Label, row.Status).Set(float64(row.Total))
	}

	var exportRows []groupCount
	if err := c.db.WithContext(ctx).Raw(
		`SELECT status, COUNT(*) AS total FROM export_jobs GROUP BY status`,
	).Scan(&exportRows).Error; err != nil {
		return err
	}
	c.exportJobs.Reset()
	for _, row := range exportRows {
		c.exportJobs.WithLabelValues(row.Status).Set(float64(row.Total))
	}

	var alertRows []groupCount
	if err := c.db.WithContext(ctx).Raw(
		`SELECT severity AS label, COUNT(*) AS total FROM alerts WHERE created_at >= ? GROUP BY severity`,
		now.Add(-recentAlertWindow),
	).Scan(&alertRows).Error; err != nil {
		return err
	}
	c.recentAlerts.Reset()
	for _, row := range alertRows {
		c.recentAlerts.WithLabelValues(row.Label).Set(float64(row.Total))
	}

	var latest string
	if err := c.db.WithContext(ctx).Raw(
		`SELECT COALESCE(MAX(snapshot_date), '') FROM snapshots WHERE status = ?`,
		string(snapshotdomain.StatusOK),
	).Scan(&latest).Error; err != nil {
		return err
	}
	if day, err := snapshotdomain.ParseDate(latest); err == nil {
		c.latestDay.Set(float64(day.Unix()))
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	c.memoryUsage.Set(float64(m.Sys))
	c.lastCollected.Set(float64(now.Unix()))
	return nil
}
