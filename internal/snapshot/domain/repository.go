package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	// Upsert inserts or overwrites the row for s.SnapshotDate.
	Upsert(ctx context.Context, db *gorm.DB, s *Snapshot) error
	FindByDate(ctx context.Context, db *gorm.DB, date string) (*Snapshot, error)
	// ListRange returns snapshots with from <= date <= to and date > after,
	// ordered by date, at most limit rows.
	ListRange(ctx context.Context, db *gorm.DB, from, to, after string, limit int) ([]Snapshot, error)
}
