package repository

import (
	"context"
	"time"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() alertdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, a *alertdomain.Alert) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO alerts (id, metric_type, affected_item, value, severity, state, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID,
		a.MetricType,
		a.AffectedItem,
		a.Value,
		a.Severity,
		a.State,
		a.CreatedAt,
	).Error
}

func (r *repo) RecentSimilarExists(ctx context.Context, db *gorm.DB, metricType, affectedItem string, severity alertdomain.Severity, since time.Time) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM (
		   SELECT id FROM alerts
		   WHERE metric_type = ? AND affected_item = ? AND severity = ? AND created_at >= ?
		   LIMIT 1
		 ) recent`,
		metricType,
		affectedItem,
		severity,
		since,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter alertdomain.ListFilter) ([]alertdomain.Alert, error) {
	var items []alertdomain.Alert
	stmt := db.WithContext(ctx).Model(&alertdomain.Alert{})
	if filter.MetricType != "" {
		stmt = stmt.Where("metric_type = ?", filter.MetricType)
	}
	if filter.AffectedItem != "" {
		stmt = stmt.Where("affected_item = ?", filter.AffectedItem)
	}
	if filter.Severity != alertdomain.SeverityNone {
		stmt = stmt.Where("severity = ?", filter.Severity)
	}
	if filter.From != nil {
		stmt = stmt.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		stmt = stmt.Where("created_at < ?", *filter.To)
	}
	if filter.AfterCreated != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", *filter.AfterCreated, *filter.AfterCreated, filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}
	err := stmt.
		Order("created_at desc, id desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
