package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/idempotency"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/storage"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	dateLayout    = "2006-01-02"
	settleTimeout = 10 * time.Second
	maxErrorLen   = 1024
)

// Submitter enqueues a one-shot job with the default retry policy.
type Submitter interface {
	Submit(ctx context.Context, name string, payload any) (*queue.Job, error)
}

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      exportdomain.Repository
	Gate      *idempotency.Gate `optional:"true"`
	Submitter Submitter
	Store     storage.ObjectStore
	Clock     clock.Clock
	Config    config.Config
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	repo        exportdomain.Repository
	gate        *idempotency.Gate
	submitter   Submitter
	store       storage.ObjectStore
	clock       clock.Clock
	cfg         config.ExportConfig
	urlTTL      time.Duration
	metrics     *obsmetrics.Metrics
	completions *completions
}

func New(p Params) exportdomain.Service {
	cfg := p.Config.Export
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.WaitAttempts <= 0 {
		cfg.WaitAttempts = 60
	}
	if cfg.WaitInterval <= 0 {
		cfg.WaitInterval = time.Second
	}
	urlTTL := p.Config.Storage.SignedURLTTL
	if urlTTL <= 0 {
		urlTTL = 24 * time.Hour
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("export.service"),
		repo:        p.Repo,
		gate:        p.Gate,
		submitter:   p.Submitter,
		store:       p.Store,
		clock:       p.Clock,
		cfg:         cfg,
		urlTTL:      urlTTL,
		metrics:     p.Metrics,
		completions: newCompletions(),
	}
}

func (s *Service) Submit(ctx context.Context, req exportdomain.SubmitRequest, idempotencyKey string) (*exportdomain.SubmitResult, error) {
	job, err := s.validate(req)
	if err != nil {
		return nil, err
	}

	create := func(ctx context.Context) (string, error) {
		return s.create(ctx, job)
	}
	if s.gate == nil {
		id, err := create(ctx)
		if err != nil {
			return nil, err
		}
		return &exportdomain.SubmitResult{JobID: id}, nil
	}

	res, err := s.gate.Guard(ctx, idempotencyKey, create)
	if err != nil {
		return nil, err
	}
	return &exportdomain.SubmitResult{JobID: res.JobID, Duplicate: res.Duplicate}, nil
}

func (s *Service) validate(req exportdomain.SubmitRequest) (exportdomain.ExportJob, error) {
	reportType := exportdomain.ReportType(strings.ToLower(strings.TrimSpace(req.ReportType)))
	switch reportType {
	case exportdomain.ReportSnapshots, exportdomain.ReportAlerts, exportdomain.ReportThresholds:
	default:
		return exportdomain.ExportJob{}, exportdomain.ErrInvalidReportType
	}

	format := exportdomain.Format(strings.ToLower(strings.TrimSpace(req.Format)))
	switch format {
	case exportdomain.FormatXLSX, exportdomain.FormatCSV, exportdomain.FormatPDF:
	default:
		return exportdomain.ExportJob{}, exportdomain.ErrInvalidFormat
	}

	from, err := time.Parse(dateLayout, strings.TrimSpace(req.From))
	if err != nil {
		return exportdomain.ExportJob{}, exportdomain.ErrInvalidDate
	}
	to, err := time.Parse(dateLayout, strings.TrimSpace(req.To))
	if err != nil {
		return exportdomain.ExportJob{}, exportdomain.ErrInvalidDate
	}
	if to.Before(from) {
		return exportdomain.ExportJob{}, exportdomain.ErrInvalidRange
	}
	if s.cfg.MaxRangeDays > 0 && int(to.Sub(from).Hours()/24)+1 > s.cfg.MaxRangeDays {
		return exportdomain.ExportJob{}, exportdomain.ErrRangeTooLarge
	}

	return exportdomain.ExportJob{
		ReportType:  reportType,
		DateFrom:    from.Format(dateLayout),
		DateTo:      to.Format(dateLayout),
		Format:      format,
		RequestedBy: strings.TrimSpace(req.RequestedBy),
	}, nil
}

func (s *Service) create(ctx context.Context, job exportdomain.ExportJob) (string, error) {
	now := s.clock.Now().UTC()
	job.ID = ulid.Make().String()
	job.Status = exportdomain.StatusPending
	job.CreatedAt = now
	job.UpdatedAt = now

	if err := s.repo.Insert(ctx, s.db, &job); err != nil {
		return "", err
	}

	log := obslogger.WithContext(ctx, s.log).With(zap.String("export_job_id", job.ID))
	if _, err := s.submitter.Submit(ctx, exportdomain.RunQueue, exportdomain.JobPayload{JobID: job.ID}); err != nil {
		log.Error("export.enqueue_failed", zap.Error(err))
		if _, markErr := s.repo.MarkFailed(context.WithoutCancel(ctx), s.db, job.ID, summarize(fmt.Errorf("enqueue: %w", err)), s.clock.Now().UTC()); markErr != nil {
			log.Error("export.mark_failed_error", zap.Error(markErr))
		}
		s.metrics.RecordExport(ctx, string(job.ReportType), string(job.Format), string(exportdomain.StatusFailed))
		return "", fmt.Errorf("enqueue export %s: %w", job.ID, err)
	}

	log.Info("export.submitted",
		zap.String("report_type", string(job.ReportType)),
		zap.String("format", string(job.Format)),
		zap.String("from", job.DateFrom),
		zap.String("to", job.DateTo),
	)
	return job.ID, nil
}

func (s *Service) SubmitAndWait(ctx context.Context, req exportdomain.SubmitRequest, idempotencyKey string) (*exportdomain.SubmitResult, error) {
	res, err := s.Submit(ctx, req, idempotencyKey)
	if err != nil {
		return nil, err
	}

	done, release := s.completions.wait(res.JobID)
	defer release()

	ticker := time.NewTicker(s.cfg.WaitInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < s.cfg.WaitAttempts; attempt++ {
		view, err := s.Status(ctx, res.JobID)
		if err != nil {
			return nil, err
		}
		if view.Status.Terminal() {
			res.Status = view
			return res, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-done:
			done = nil
		case <-ticker.C:
		}
	}

	view, err := s.Status(ctx, res.JobID)
	if err != nil {
		return nil, err
	}
	if !view.Status.Terminal() {
		view.Status = exportdomain.StatusProcessing
		view.Progress = exportdomain.Progress(exportdomain.StatusProcessing)
	}
	res.Status = view
	return res, nil
}

func (s *Service) Status(ctx context.Context, jobID string) (*exportdomain.StatusView, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return nil, exportdomain.ErrInvalidJobID
	}
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return &exportdomain.StatusView{JobID: jobID, Status: exportdomain.StatusPending}, nil
	}
	view := exportdomain.ToStatusView(job)
	return &view, nil
}

func (s *Service) Fail(ctx context.Context, jobID string, reason string) error {
	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	if job == nil || job.Status.Terminal() {
		return nil
	}
	return s.fail(ctx, job, errors.New(reason))
}

func (s *Service) fail(ctx context.Context, job *exportdomain.ExportJob, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
	defer cancel()

	changed, err := s.repo.MarkFailed(ctx, s.db, job.ID, summarize(cause), s.clock.Now().UTC())
	if err != nil {
		return err
	}
	if changed {
		s.metrics.RecordExport(ctx, string(job.ReportType), string(job.Format), string(exportdomain.StatusFailed))
		obslogger.WithContext(ctx, s.log).Warn("export.failed",
			zap.String("export_job_id", job.ID),
			zap.Error(cause),
		)
	}
	s.completions.done(job.ID)
	return nil
}

func summarize(err error) string {
	if err == nil {
		return "unknown error"
	}
	msg := strings.TrimSpace(strings.ToValidUTF8(err.Error(), ""))
	if msg == "" {
		return "unknown error"
	}
	if len(msg) > maxErrorLen {
		msg = strings.ToValidUTF8(msg[:maxErrorLen], "")
	}
	return msg
}
