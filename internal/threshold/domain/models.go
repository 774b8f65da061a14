package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Threshold is one version of the warning/critical levels of a metric.
// Rows are never updated; the latest row per metric_key is current.
type Threshold struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	MetricKey string       `json:"metric_key" gorm:"type:varchar(64);not null;index:ix_thresholds_key_created,priority:1"`
	Warning   float64      `json:"warning" gorm:"not null"`
	Critical  float64      `json:"critical" gorm:"not null"`
	Actor     *string      `json:"actor,omitempty" gorm:"type:varchar(128)"`
	CreatedAt time.Time    `json:"created_at" gorm:"not null;index:ix_thresholds_key_created,priority:2"`
}

func (Threshold) TableName() string { return "thresholds" }
