package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"gorm.io/gorm"
)

// Cursor is a (created_at, id) keyset position.
type Cursor struct {
	CreatedAt time.Time
	ID        snowflake.ID
}

type Completion struct {
	RowsWritten  int64
	ObjectKey    string
	DownloadURL  string
	URLExpiresAt time.Time
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, job *ExportJob) error
	FindByID(ctx context.Context, db *gorm.DB, id string) (*ExportJob, error)

	// Transitions are conditional on the current status and report whether a
	// row changed.
	MarkProcessing(ctx context.Context, db *gorm.DB, id string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, db *gorm.DB, id string, c Completion, now time.Time) (bool, error)
	MarkFailed(ctx context.Context, db *gorm.DB, id string, reason string, now time.Time) (bool, error)

	// Report readers return rows in ascending keyset order.
	ListSnapshots(ctx context.Context, db *gorm.DB, from, to, after string, limit int) ([]snapshotdomain.Snapshot, error)
	ListAlerts(ctx context.Context, db *gorm.DB, from, to time.Time, after *Cursor, limit int) ([]alertdomain.Alert, error)
	ListThresholds(ctx context.Context, db *gorm.DB, from, to time.Time, after *Cursor, limit int) ([]thresholddomain.Threshold, error)
}
