package domain

import "time"

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Terminal states never transition again.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type ReportType string

const (
	ReportSnapshots  ReportType = "snapshots"
	ReportAlerts     ReportType = "alerts"
	ReportThresholds ReportType = "thresholds"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatPDF  Format = "pdf"
)

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv"
	case FormatPDF:
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

// ExportJob tracks one export request. Only the export worker moves it past PENDING.
type ExportJob struct {
	ID           string     `json:"id" gorm:"type:varchar(26);primaryKey"`
	ReportType   ReportType `json:"report_type" gorm:"type:varchar(32);not null"`
	DateFrom     string     `json:"date_from" gorm:"type:varchar(10);not null"`
	DateTo       string     `json:"date_to" gorm:"type:varchar(10);not null"`
	Format       Format     `json:"format" gorm:"type:varchar(8);not null"`
	RequestedBy  string     `json:"requested_by" gorm:"type:varchar(255)"`
	Status       Status     `json:"status" gorm:"type:varchar(16);not null;index:ix_export_jobs_status"`
	RowsWritten  int64      `json:"rows_written" gorm:"not null;default:0"`
	ObjectKey    string     `json:"object_key" gorm:"type:varchar(512)"`
	DownloadURL  string     `json:"download_url" gorm:"type:text"`
	URLExpiresAt *time.Time `json:"url_expires_at"`
	Error        string     `json:"error" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at" gorm:"not null"`
	CompletedAt  *time.Time `json:"completed_at"`
}

func (ExportJob) TableName() string { return "export_jobs" }
