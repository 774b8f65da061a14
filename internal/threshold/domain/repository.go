package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, t *Threshold) error
	FindCurrent(ctx context.Context, db *gorm.DB, metricKey string) (*Threshold, error)
	ListHistory(ctx context.Context, db *gorm.DB, metricKey string, limit int) ([]Threshold, error)
	ListCurrent(ctx context.Context, db *gorm.DB) ([]Threshold, error)
}
