package domain

import (
	"context"
	"errors"
	"time"
)

// RunQueue is the queue consumed by the export worker.
const RunQueue = "exports.run"

type JobPayload struct {
	JobID string `json:"job_id"`
}

type Service interface {
	// Submit validates req, deduplicates on idempotencyKey, records a PENDING
	// job and enqueues it. It never waits for the export itself.
	Submit(ctx context.Context, req SubmitRequest, idempotencyKey string) (*SubmitResult, error)
	// SubmitAndWait submits and then waits a bounded time for a terminal
	// state. On timeout the result carries PROCESSING.
	SubmitAndWait(ctx context.Context, req SubmitRequest, idempotencyKey string) (*SubmitResult, error)
	// Status reports PENDING for ids it does not know yet.
	Status(ctx context.Context, jobID string) (*StatusView, error)

	// Run executes a job. final marks the last queue attempt, after which a
	// failure is recorded as FAILED.
	Run(ctx context.Context, jobID string, final bool) error
	Fail(ctx context.Context, jobID string, reason string) error
}

type SubmitRequest struct {
	ReportType  string `json:"report_type"`
	From        string `json:"from"`
	To          string `json:"to"`
	Format      string `json:"format"`
	RequestedBy string `json:"requested_by"`
}

type SubmitResult struct {
	JobID     string      `json:"job_id"`
	Duplicate bool        `json:"duplicate"`
	Status    *StatusView `json:"status,omitempty"`
}

type StatusView struct {
	JobID        string     `json:"job_id"`
	Status       Status     `json:"status"`
	Progress     int        `json:"progress"`
	RowsWritten  int64      `json:"rows_written"`
	DownloadURL  string     `json:"download_url,omitempty"`
	URLExpiresAt *time.Time `json:"url_expires_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

var (
	ErrInvalidReportType = errors.New("invalid_report_type")
	ErrInvalidFormat     = errors.New("invalid_export_format")
	ErrInvalidDate       = errors.New("invalid_export_date")
	ErrInvalidRange      = errors.New("invalid_export_range")
	ErrRangeTooLarge     = errors.New("export_range_too_large")
	ErrInvalidJobID      = errors.New("invalid_export_job_id")
)

// Progress is coarse: it only reflects the state.
func Progress(s Status) int {
	switch s {
	case StatusProcessing:
		return 50
	case StatusCompleted, StatusFailed:
		return 100
	default:
		return 0
	}
}

func ToStatusView(job *ExportJob) StatusView {
	view := StatusView{
		JobID:       job.ID,
		Status:      job.Status,
		Progress:    Progress(job.Status),
		RowsWritten: job.RowsWritten,
		Error:       job.Error,
	}
	if job.Status == StatusCompleted {
		view.DownloadURL = job.DownloadURL
		view.URLExpiresAt = job.URLExpiresAt
	}
	return view
}
