package repository

import (
	"context"

	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() thresholddomain.Repository {
	return &repo{}
}

const thresholdColumns = `id, metric_key, warning, critical, actor, created_at`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, t *thresholddomain.Threshold) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO thresholds (id, metric_key, warning, critical, actor, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID,
		t.MetricKey,
		t.Warning,
		t.Critical,
		t.Actor,
		t.CreatedAt,
	).Error
}

func (r *repo) FindCurrent(ctx context.Context, db *gorm.DB, metricKey string) (*thresholddomain.Threshold, error) {
	var t thresholddomain.Threshold
	err := db.WithContext(ctx).Raw(
		`SELECT `+thresholdColumns+` FROM thresholds
		 WHERE metric_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		metricKey,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) ListHistory(ctx context.Context, db *gorm.DB, metricKey string, limit int) ([]thresholddomain.Threshold, error) {
	var items []thresholddomain.Threshold
	err := db.WithContext(ctx).Raw(
		`SELECT `+thresholdColumns+` FROM thresholds
		 WHERE metric_key = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		metricKey,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListCurrent(ctx context.Context, db *gorm.DB) ([]thresholddomain.Threshold, error) {
	var items []thresholddomain.Threshold
	err := db.WithContext(ctx).Raw(
		`SELECT t.id, t.metric_key, t.warning, t.critical, t.actor, t.created_at
		 FROM thresholds t
		 WHERE t.id = (
		   SELECT t2.id FROM thresholds t2
		   WHERE t2.metric_key = t.metric_key
		   ORDER BY t2.created_at DESC, t2.id DESC
		   LIMIT 1
		 )
		 ORDER BY t.metric_key ASC`,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
