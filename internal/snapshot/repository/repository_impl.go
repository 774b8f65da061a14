package repository

import (
	"context"

	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() snapshotdomain.Repository {
	return &repo{}
}

const snapshotColumns = `id, snapshot_date, total_revenue, total_orders, avg_service_minutes, rotation_index,
	avg_ticket, alerts_generated, status, metadata, created_at, updated_at`

func (r *repo) Upsert(ctx context.Context, db *gorm.DB, s *snapshotdomain.Snapshot) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "snapshot_date"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"total_revenue",
				"total_orders",
				"avg_service_minutes",
				"rotation_index",
				"avg_ticket",
				"alerts_generated",
				"status",
				"metadata",
				"updated_at",
			}),
		}).
		Create(s).Error
}

func (r *repo) FindByDate(ctx context.Context, db *gorm.DB, date string) (*snapshotdomain.Snapshot, error) {
	var s snapshotdomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+` FROM snapshots WHERE snapshot_date = ?`,
		date,
	).Scan(&s).Error
	if err != nil {
		return nil, err
	}
	if s.ID == 0 {
		return nil, nil
	}
	return &s, nil
}

func (r *repo) ListRange(ctx context.Context, db *gorm.DB, from, to, after string, limit int) ([]snapshotdomain.Snapshot, error) {
	var items []snapshotdomain.Snapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+` FROM snapshots
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
