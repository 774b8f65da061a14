package service

import (
	"context"
	"time"

	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"gorm.io/gorm"
)

// dataset yields report rows in bounded batches. An empty batch ends it.
type dataset interface {
	Header() []string
	Next(ctx context.Context) ([][]any, error)
}

func newDataset(db *gorm.DB, repo exportdomain.Repository, job *exportdomain.ExportJob, batch int) (dataset, error) {
	switch job.ReportType {
	case exportdomain.ReportSnapshots:
		return &snapshotRows{db: db, repo: repo, from: job.DateFrom, to: job.DateTo, batch: batch}, nil
	case exportdomain.ReportAlerts, exportdomain.ReportThresholds:
		from, to, err := dayBounds(job.DateFrom, job.DateTo)
		if err != nil {
			return nil, err
		}
		if job.ReportType == exportdomain.ReportAlerts {
			return &alertRows{db: db, repo: repo, from: from, to: to, batch: batch}, nil
		}
		return &thresholdRows{db: db, repo: repo, from: from, to: to, batch: batch}, nil
	default:
		return nil, exportdomain.ErrInvalidReportType
	}
}

// dayBounds turns an inclusive date range into a half-open UTC interval.
func dayBounds(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, exportdomain.ErrInvalidDate
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, exportdomain.ErrInvalidDate
	}
	return start.UTC(), end.UTC().AddDate(0, 0, 1), nil
}

type snapshotRows struct {
	db       *gorm.DB
	repo     exportdomain.Repository
	from, to string
	after    string
	batch    int
}

func (s *snapshotRows) Header() []string {
	return []string{"snapshot_date", "total_revenue", "total_orders", "avg_service_minutes",
		"rotation_index", "avg_ticket", "alerts_generated", "status"}
}

func (s *snapshotRows) Next(ctx context.Context) ([][]any, error) {
	items, err := s.repo.ListSnapshots(ctx, s.db, s.from, s.to, s.after, s.batch)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.SnapshotDate,
			it.TotalRevenue,
			it.TotalOrders,
			it.AvgServiceMinutes,
			it.RotationIndex,
			it.AvgTicket,
			it.AlertsGenerated,
			string(it.Status),
		})
	}
	s.after = items[len(items)-1].SnapshotDate
	return rows, nil
}

type alertRows struct {
	db       *gorm.DB
	repo     exportdomain.Repository
	from, to time.Time
	after    *exportdomain.Cursor
	batch    int
}

func (a *alertRows) Header() []string {
	return []string{"id", "created_at", "metric_type", "affected_item", "value", "severity", "state"}
}

func (a *alertRows) Next(ctx context.Context) ([][]any, error) {
	items, err := a.repo.ListAlerts(ctx, a.db, a.from, a.to, a.after, a.batch)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		rows = append(rows, []any{
			it.ID.String(),
			it.CreatedAt,
			it.MetricType,
			it.AffectedItem,
			it.Value,
			string(it.Severity),
			string(it.State),
		})
	}
	last := items[len(items)-1]
	a.after = &exportdomain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	return rows, nil
}

type thresholdRows struct {
	db       *gorm.DB
	repo     exportdomain.Repository
	from, to time.Time
	after    *exportdomain.Cursor
	batch    int
}

func (t *thresholdRows) Header() []string {
	return []string{"id", "created_at", "metric_key", "warning", "critical", "actor"}
}

func (t *thresholdRows) Next(ctx context.Context) ([][]any, error) {
	items, err := t.repo.ListThresholds(ctx, t.db, t.from, t.to, t.after, t.batch)
	if err != nil || len(items) == 0 {
		return nil, err
	}
	rows := make([][]any, 0, len(items))
	for _, it := range items {
		actor := ""
		if it.Actor != nil {
			actor = *it.Actor
		}
		rows = append(rows, []any{
			it.ID.String(),
			it.CreatedAt,
			it.MetricKey,
			it.Warning,
			it.Critical,
			actor,
		})
	}
	last := items[len(items)-1]
	t.after = &exportdomain.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	return rows, nil
}
