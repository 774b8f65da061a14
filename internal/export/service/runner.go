package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/gosimple/slug"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/export/writer"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func (s *Service) Run(ctx context.Context, jobID string, final bool) error {
	log := obslogger.WithContext(ctx, s.log).With(zap.String("export_job_id", jobID))

	job, err := s.repo.FindByID(ctx, s.db, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		log.Warn("export.unknown_job")
		return nil
	}
	if job.Status.Terminal() {
		log.Debug("export.already_terminal", zap.String("status", string(job.Status)))
		return nil
	}

	claimed, err := s.repo.MarkProcessing(ctx, s.db, job.ID, s.clock.Now().UTC())
	if err != nil {
		return s.settleFailure(ctx, job, err, final)
	}
	if !claimed {
		return nil
	}

	completion, err := s.produce(ctx, job)
	if err != nil {
		return s.settleFailure(ctx, job, err, final)
	}

	changed, err := s.repo.MarkCompleted(ctx, s.db, job.ID, completion, s.clock.Now().UTC())
	if err != nil {
		return s.settleFailure(ctx, job, err, final)
	}
	if changed {
		s.metrics.RecordExport(ctx, string(job.ReportType), string(job.Format), string(exportdomain.StatusCompleted))
		log.Info("export.completed",
			zap.String("object_key", completion.ObjectKey),
			zap.Int64("rows_written", completion.RowsWritten),
		)
	}
	s.completions.done(job.ID)
	return nil
}

// settleFailure records FAILED on the last attempt; earlier attempts are
// left PROCESSING for the queue to retry.
func (s *Service) settleFailure(ctx context.Context, job *exportdomain.ExportJob, cause error, final bool) error {
	if !final {
		obslogger.WithContext(ctx, s.log).Warn("export.attempt_failed",
			zap.String("export_job_id", job.ID),
			zap.Error(cause),
		)
		return cause
	}
	if err := s.fail(ctx, job, cause); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

// produce streams the dataset through the format writer straight into the
// object store upload.
func (s *Service) produce(ctx context.Context, job *exportdomain.ExportJob) (exportdomain.Completion, error) {
	rows, err := newDataset(s.db, s.repo, job, s.cfg.BatchSize)
	if err != nil {
		return exportdomain.Completion{}, err
	}

	key := objectKey(job)
	pr, pw := io.Pipe()
	g, gctx := errgroup.WithContext(ctx)

	var written int64
	g.Go(func() error {
		n, err := s.stream(gctx, job, rows, pw)
		written = n
		_ = pw.CloseWithError(err)
		if err != nil {
			return fmt.Errorf("stream rows: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := s.store.Upload(gctx, key, job.Format.ContentType(), pr)
		if err != nil {
			_ = pr.CloseWithError(err)
			return fmt.Errorf("upload %s: %w", key, err)
		}
		return pr.Close()
	})
	if err := g.Wait(); err != nil {
		return exportdomain.Completion{}, err
	}

	url, err := s.store.SignedURL(ctx, key, s.urlTTL)
	if err != nil {
		return exportdomain.Completion{}, fmt.Errorf("sign %s: %w", key, err)
	}
	return exportdomain.Completion{
		RowsWritten:  written,
		ObjectKey:    key,
		DownloadURL:  url,
		URLExpiresAt: s.clock.Now().UTC().Add(s.urlTTL),
	}, nil
}

func (s *Service) stream(ctx context.Context, job *exportdomain.ExportJob, rows dataset, out io.Writer) (int64, error) {
	w, err := writer.New(string(job.Format), out, writer.Options{
		Title:       fmt.Sprintf("%s %s to %s", job.ReportType, job.DateFrom, job.DateTo),
		MaxPDFRows:  s.cfg.MaxPDFRows,
		MaxXLSXRows: s.cfg.MaxXLSXRows,
	})
	if err != nil {
		return 0, err
	}
	if err := w.WriteHeader(rows.Header()); err != nil {
		return 0, err
	}

	var n int64
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		batch, err := rows.Next(ctx)
		if err != nil {
			return n, err
		}
		if len(batch) == 0 {
			break
		}
		for _, row := range batch {
			if err := w.WriteRow(row); err != nil {
				return n, err
			}
			n++
		}
	}
	return n, w.Close()
}

func objectKey(job *exportdomain.ExportJob) string {
	name := slug.Make(fmt.Sprintf("%s %s %s", job.ReportType, job.DateFrom, job.DateTo))
	return fmt.Sprintf("exports/%s/%s-%s.%s", job.ReportType, name, strings.ToLower(job.ID), job.Format)
}
