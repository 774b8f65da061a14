package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Severity string

const (
	SeverityNone     Severity = ""
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

type State string

const (
	StatePending State = "PENDING"
)

// Alert is an append-only record of a threshold breach.
type Alert struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	MetricType   string       `json:"metric_type" gorm:"type:varchar(64);not null;index:ix_alerts_dedup,priority:1"`
	AffectedItem string       `json:"affected_item" gorm:"type:varchar(255);not null;index:ix_alerts_dedup,priority:2"`
	Value        string       `json:"value" gorm:"type:varchar(64);not null"`
	Severity     Severity     `json:"severity" gorm:"type:varchar(16);not null;index:ix_alerts_dedup,priority:3"`
	State        State        `json:"state" gorm:"type:varchar(16);not null;default:PENDING"`
	CreatedAt    time.Time    `json:"created_at" gorm:"not null;index:ix_alerts_dedup,priority:4;index:ix_alerts_created"`
}

func (Alert) TableName() string { return "alerts" }
