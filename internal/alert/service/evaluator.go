package service

import (
	"context"
	"errors"
	"fmt"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/upstream"
	"go.uber.org/zap"
)

// LiveSource is the fail-open view of the live metrics feed.
type LiveSource interface {
	LiveMetrics(ctx context.Context) ([]upstream.LiveMetric, bool)
}

// Evaluator pulls the live metrics feed and evaluates every reading.
// Readings are evaluated one after another so later readings in the same
// tick see alerts written by earlier ones.
type Evaluator struct {
	svc    alertdomain.Service
	source LiveSource
	log    *zap.Logger
}

func NewEvaluator(svc alertdomain.Service, source LiveSource, log *zap.Logger) *Evaluator {
	return &Evaluator{svc: svc, source: source, log: log.Named("alert.evaluator")}
}

func (e *Evaluator) Queue() string { return alertdomain.EvaluateQueue }

func (e *Evaluator) Handle(ctx context.Context, _ *queue.Job) error {
	_, err := e.EvaluateOnce(ctx)
	return err
}

// TickResult summarises one evaluation pass.
type TickResult struct {
	Readings   int
	Raised     int
	Suppressed int
	Degraded   bool
}

func (e *Evaluator) EvaluateOnce(ctx context.Context) (TickResult, error) {
	metrics, degraded := e.source.LiveMetrics(ctx)
	result := TickResult{Readings: len(metrics), Degraded: degraded}

	var errs []error
	for _, m := range metrics {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		eval, err := e.svc.EvaluateMetric(ctx, alertdomain.EvaluateRequest{
			MetricType:   m.MetricType,
			AffectedItem: m.AffectedItem,
			Value:        m.Value,
		})
		if err != nil {
			if isValidationError(err) {
				e.log.Debug("alert.evaluator.skip_reading",
					zap.String("metric_type", m.MetricType),
					zap.String("affected_item", m.AffectedItem),
					zap.Error(err),
				)
				continue
			}
			errs = append(errs, fmt.Errorf("%s/%s: %w", m.MetricType, m.AffectedItem, err))
			continue
		}
		if eval.Raised() {
			result.Raised++
		}
		if eval.Suppressed {
			result.Suppressed++
		}
	}

	e.log.Info("alert.evaluator.tick",
		zap.Int("readings", result.Readings),
		zap.Int("raised", result.Raised),
		zap.Int("suppressed", result.Suppressed),
		zap.Bool("degraded", result.Degraded),
		zap.Int("error_count", len(errs)),
	)
	return result, errors.Join(errs...)
}

func isValidationError(err error) bool {
	return errors.Is(err, alertdomain.ErrInvalidMetricType) ||
		errors.Is(err, alertdomain.ErrInvalidAffectedItem) ||
		errors.Is(err, alertdomain.ErrInvalidValue)
}
