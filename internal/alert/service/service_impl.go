package service

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"github.com/smallbiznis/opspulse/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const notifyTimeout = 10 * time.Second

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       alertdomain.Repository
	Thresholds thresholddomain.Service
	Notifier   alertdomain.Notifier `optional:"true"`
	Clock      clock.Clock
	KPI        *config.KPIConfigHolder
	Metrics    *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       alertdomain.Repository
	thresholds thresholddomain.Service
	notifier   alertdomain.Notifier
	clock      clock.Clock
	kpi        *config.KPIConfigHolder
	metrics    *obsmetrics.Metrics
}

func New(p Params) alertdomain.Service {
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("alert.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		thresholds: p.Thresholds,
		notifier:   p.Notifier,
		clock:      p.Clock,
		kpi:        p.KPI,
		metrics:    p.Metrics,
	}
}

func (s *Service) EvaluateMetric(ctx context.Context, req alertdomain.EvaluateRequest) (*alertdomain.Evaluation, error) {
	metricType := thresholddomain.NormalizeKey(req.MetricType)
	if metricType == "" {
		return nil, alertdomain.ErrInvalidMetricType
	}
	item := strings.TrimSpace(req.AffectedItem)
	if item == "" {
		return nil, alertdomain.ErrInvalidAffectedItem
	}
	if math.IsNaN(req.Value) || math.IsInf(req.Value, 0) {
		return nil, alertdomain.ErrInvalidValue
	}

	result := &alertdomain.Evaluation{MetricType: metricType, AffectedItem: item}

	threshold, err := s.thresholds.Current(ctx, metricType)
	if err != nil {
		return nil, err
	}
	severity := alertdomain.DecideSeverity(req.Value, threshold)
	if severity == alertdomain.SeverityNone {
		return result, nil
	}
	result.Severity = severity

	log := obslogger.WithContext(ctx, s.log).With(
		zap.String("metric_type", metricType),
		zap.String("affected_item", item),
		zap.String("severity", string(severity)),
	)

	now := s.clock.Now().UTC()
	window := s.kpi.Get().DedupWindow
	if window > 0 {
		exists, err := s.repo.RecentSimilarExists(ctx, s.db, metricType, item, severity, now.Add(-window))
		if err != nil {
			return nil, err
		}
		if exists {
			result.Suppressed = true
			s.metrics.RecordAlertSuppressed(ctx, metricType, string(severity))
			log.Debug("alert.suppressed", zap.Duration("dedup_window", window))
			return result, nil
		}
	}

	alert := &alertdomain.Alert{
		ID:           s.genID.Generate(),
		MetricType:   metricType,
		AffectedItem: item,
		Value:        strconv.FormatFloat(req.Value, 'f', -1, 64),
		Severity:     severity,
		State:        alertdomain.StatePending,
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, s.db, alert); err != nil {
		log.Error("alert.persist_failed", zap.Error(err))
		return nil, err
	}

	resp := alertdomain.ToResponse(alert)
	result.Alert = &resp
	s.metrics.RecordAlertRaised(ctx, metricType, string(severity))
	log.Info("alert.raised", zap.String("alert_id", resp.ID), zap.String("value", alert.Value))

	s.notify(ctx, alertdomain.Event{Alert: resp, Warning: threshold.Warning, Critical: threshold.Critical})
	return result, nil
}

// notify hands the event to the sink without blocking the caller. Sink
// failures are logged and never fail the alert write.
func (s *Service) notify(ctx context.Context, event alertdomain.Event) {
	if s.notifier == nil {
		return
	}
	log := obslogger.WithContext(ctx, s.log)
	notifyCtx := context.WithoutCancel(ctx)
	go func() {
		notifyCtx, cancel := context.WithTimeout(notifyCtx, notifyTimeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error("alert.notify_panic", zap.Any("panic", r))
			}
		}()
		if err := s.notifier.Notify(notifyCtx, event); err != nil {
			log.Warn("alert.notify_failed", zap.String("alert_id", event.Alert.ID), zap.Error(err))
		}
	}()
}

func (s *Service) List(ctx context.Context, req alertdomain.ListRequest) (*alertdomain.ListResponse, error) {
	severity, err := alertdomain.ParseSeverity(req.Severity)
	if err != nil {
		return nil, err
	}
	filter := alertdomain.ListFilter{
		MetricType:   thresholddomain.NormalizeKey(req.MetricType),
		AffectedItem: strings.TrimSpace(req.AffectedItem),
		Severity:     severity,
	}
	if filter.From, err = parseBound(req.From); err != nil {
		return nil, err
	}
	if filter.To, err = parseBound(req.To); err != nil {
		return nil, err
	}
	if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
		return nil, alertdomain.ErrInvalidRange
	}

	cursor, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		createdAt, err := time.Parse(time.RFC3339Nano, cursor.CreatedAt)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		id, err := snowflake.ParseString(cursor.ID)
		if err != nil {
			return nil, pagination.ErrInvalidPageToken
		}
		createdAt = createdAt.UTC()
		filter.AfterCreated = &createdAt
		filter.AfterID = id
	}

	limit := req.Limit()
	filter.Limit = limit + 1
	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return nil, err
	}
	items, pageInfo, err := pagination.Page(items, limit, func(a alertdomain.Alert) pagination.Cursor {
		return pagination.Cursor{ID: a.ID.String(), CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339Nano)}
	})
	if err != nil {
		return nil, err
	}

	resp := &alertdomain.ListResponse{Data: make([]alertdomain.Response, 0, len(items)), PageInfo: pageInfo}
	for i := range items {
		resp.Data = append(resp.Data, alertdomain.ToResponse(&items[i]))
	}
	return resp, nil
}

// parseBound accepts RFC3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func parseBound(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, alertdomain.ErrInvalidRange
	}
	return &t, nil
}
