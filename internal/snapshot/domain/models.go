package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/opspulse/internal/stats"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusOK     Status = "ok"
	StatusNoData Status = "no_data"
)

// DateLayout is the day-granularity key used for snapshot_date.
const DateLayout = "2006-01-02"

// Snapshot is the daily KPI rollup. One row per snapshot_date.
type Snapshot struct {
	ID                snowflake.ID    `json:"id" gorm:"primaryKey"`
	SnapshotDate      string          `json:"snapshot_date" gorm:"type:varchar(10);not null;uniqueIndex:ux_snapshots_date"`
	TotalRevenue      decimal.Decimal `json:"total_revenue" gorm:"type:decimal(20,4);not null"`
	TotalOrders       int64           `json:"total_orders" gorm:"not null"`
	AvgServiceMinutes decimal.Decimal `json:"avg_service_minutes" gorm:"type:decimal(20,4);not null"`
	RotationIndex     decimal.Decimal `json:"rotation_index" gorm:"type:decimal(20,4);not null"`
	AvgTicket         decimal.Decimal `json:"avg_ticket" gorm:"type:decimal(20,4);not null"`
	AlertsGenerated   int64           `json:"alerts_generated" gorm:"not null"`
	Status            Status          `json:"status" gorm:"type:varchar(16);not null"`
	Metadata          datatypes.JSON  `json:"metadata"`
	CreatedAt         time.Time       `json:"created_at" gorm:"not null"`
	UpdatedAt         time.Time       `json:"updated_at" gorm:"not null"`
}

func (Snapshot) TableName() string { return "snapshots" }

// Metadata is the audit blob stored alongside each snapshot.
type Metadata struct {
	Revenue         stats.OutlierResult `json:"revenue"`
	ServiceTime     stats.OutlierResult `json:"service_time_ms"`
	DistinctTables  []string            `json:"distinct_tables"`
	Sources         SourceCounts        `json:"sources"`
	DegradedSources []string            `json:"degraded_sources,omitempty"`
	Timezone        string              `json:"timezone"`
	WindowFrom      time.Time           `json:"window_from"`
	WindowTo        time.Time           `json:"window_to"`
}

type SourceCounts struct {
	Sessions          int `json:"sessions"`
	ClosedSessions    int `json:"closed_sessions"`
	RevenueSamples    int `json:"revenue_samples"`
	Orders            int `json:"orders"`
	DurationSamples   int `json:"duration_samples"`
	SkippedNoDuration int `json:"skipped_no_duration"`
}
