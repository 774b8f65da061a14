package repository

import (
	"context"
	"time"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() exportdomain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, job *exportdomain.ExportJob) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO export_jobs (id, report_type, date_from, date_to, format, requested_by, status,
		   rows_written, object_key, download_url, error, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, '', '', '', ?, ?)`,
		job.ID,
		job.ReportType,
		job.DateFrom,
		job.DateTo,
		job.Format,
		job.RequestedBy,
		job.Status,
		job.CreatedAt,
		job.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id string) (*exportdomain.ExportJob, error) {
	var job exportdomain.ExportJob
	err := db.WithContext(ctx).Raw(
		`SELECT id, report_type, date_from, date_to, format, requested_by, status, rows_written,
		        object_key, download_url, url_expires_at, error, created_at, updated_at, completed_at
		 FROM export_jobs
		 WHERE id = ?`,
		id,
	).Scan(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == "" {
		return nil, nil
	}
	return &job, nil
}

func (r *repo) MarkProcessing(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE export_jobs SET status = ?, updated_at = ?
		 WHERE id = ? AND status IN ?`,
		exportdomain.StatusProcessing,
		now,
		id,
		[]exportdomain.Status{exportdomain.StatusPending, exportdomain.StatusProcessing},
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkCompleted(ctx context.Context, db *gorm.DB, id string, c exportdomain.Completion, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE export_jobs
		 SET status = ?, rows_written = ?, object_key = ?, download_url = ?, url_expires_at = ?,
		     error = '', updated_at = ?, completed_at = ?
		 WHERE id = ? AND status = ?`,
		exportdomain.StatusCompleted,
		c.RowsWritten,
		c.ObjectKey,
		c.DownloadURL,
		c.URLExpiresAt,
		now,
		now,
		id,
		exportdomain.StatusProcessing,
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) MarkFailed(ctx context.Context, db *gorm.DB, id string, reason string, now time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE export_jobs SET status = ?, error = ?, updated_at = ?, completed_at = ?
		 WHERE id = ? AND status IN ?`,
		exportdomain.StatusFailed,
		reason,
		now,
		now,
		id,
		[]exportdomain.Status{exportdomain.StatusPending, exportdomain.StatusProcessing},
	)
	return res.RowsAffected > 0, res.Error
}

func (r *repo) ListSnapshots(ctx context.Context, db *gorm.DB, from, to, after string, limit int) ([]snapshotdomain.Snapshot, error) {
	var items []snapshotdomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT id, snapshot_date, total_revenue, total_orders, avg_service_minutes, rotation_index,
		        avg_ticket, alerts_generated, status, created_at, updated_at
		 FROM snapshots
		 WHERE snapshot_date >= ? AND snapshot_date <= ? AND snapshot_date > ?
		 ORDER BY snapshot_date ASC
		 LIMIT ?`,
		from,
		to,
		after,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListAlerts(ctx context.Context, db *gorm.DB, from, to time.Time, after *exportdomain.Cursor, limit int) ([]alertdomain.Alert, error) {
	var items []alertdomain.Alert
	stmt := db.WithContext(ctx).Model(&alertdomain.Alert{}).
		Where("created_at >= ? AND created_at < ?", from, to)
	if after != nil {
		stmt = stmt.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := stmt.
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListThresholds(ctx context.Context, db *gorm.DB, from, to time.Time, after *exportdomain.Cursor, limit int) ([]thresholddomain.Threshold, error) {
	var items []thresholddomain.Threshold
	stmt := db.WithContext(ctx).Model(&thresholddomain.Threshold{}).
		Where("created_at >= ? AND created_at < ?", from, to)
	if after != nil {
		stmt = stmt.Where("(created_at > ? OR (created_at = ? AND id > ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}
	err := stmt.
		Order("created_at asc, id asc").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
