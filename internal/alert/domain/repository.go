package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type ListFilter struct {
	MetricType   string
	AffectedItem string
	Severity     Severity
	From         *time.Time
	To           *time.Time
	AfterCreated *time.Time
	AfterID      snowflake.ID
	Limit        int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, alert *Alert) error
	// RecentSimilarExists reports whether an alert with the same triple was
	// created at or after since.
	RecentSimilarExists(ctx context.Context, db *gorm.DB, metricType, affectedItem string, severity Severity, since time.Time) (bool, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Alert, error)
}
