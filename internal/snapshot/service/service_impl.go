package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"github.com/smallbiznis/opspulse/internal/stats"
	"github.com/smallbiznis/opspulse/internal/upstream"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 31
	maxListLimit     = 366
)

// EventSource is the fail-open view of the upstream services: each call
// returns an empty collection and degraded=true instead of an error.
type EventSource interface {
	ClosedSessions(ctx context.Context, from, to time.Time) ([]upstream.Session, bool)
	Orders(ctx context.Context, from, to time.Time) ([]upstream.Order, bool)
}

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    snapshotdomain.Repository
	Source  EventSource
	Clock   clock.Clock
	KPI     *config.KPIConfigHolder
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    snapshotdomain.Repository
	source  EventSource
	clock   clock.Clock
	kpi     *config.KPIConfigHolder
	metrics *obsmetrics.Metrics
}

func New(p Params) snapshotdomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("snapshot.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		source:  p.Source,
		clock:   p.Clock,
		kpi:     p.KPI,
		metrics: p.Metrics,
	}
}

func (s *Service) ComputeAndPersistDailySnapshot(ctx context.Context, date string) (*snapshotdomain.Response, error) {
	day, err := snapshotdomain.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, err
	}

	cfg := s.kpi.Get()
	loc := cfg.Location()
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, loc)
	to := from.AddDate(0, 0, 1)
	log := obslogger.WithContext(ctx, s.log).With(zap.String("snapshot_date", day.Format(snapshotdomain.DateLayout)))

	var (
		sessions         []upstream.Session
		orders           []upstream.Order
		sessionsDegraded bool
		ordersDegraded   bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		sessions, sessionsDegraded = s.source.ClosedSessions(gctx, from, to)
		return nil
	})
	g.Go(func() error {
		orders, ordersDegraded = s.source.Orders(gctx, from, to)
		return nil
	})
	_ = g.Wait()

	computation := Compute(sessions, orders, ComputeOptions{
		K:        cfg.OutlierK,
		Strategy: stats.ParseStrategy(cfg.OutlierStrategy),
	})
	computation.Metadata.Timezone = loc.String()
	computation.Metadata.WindowFrom = from.UTC()
	computation.Metadata.WindowTo = to.UTC()
	if sessionsDegraded {
		computation.Metadata.DegradedSources = append(computation.Metadata.DegradedSources, upstream.EndpointSessions)
	}
	if ordersDegraded {
		computation.Metadata.DegradedSources = append(computation.Metadata.DegradedSources, upstream.EndpointOrders)
	}

	metadata, err := json.Marshal(computation.Metadata)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	record := &snapshotdomain.Snapshot{
		ID:                s.genID.Generate(),
		SnapshotDate:      day.Format(snapshotdomain.DateLayout),
		TotalRevenue:      computation.TotalRevenue,
		TotalOrders:       computation.TotalOrders,
		AvgServiceMinutes: computation.AvgServiceMinutes,
		RotationIndex:     computation.RotationIndex,
		AvgTicket:         computation.AvgTicket,
		AlertsGenerated:   computation.AlertsGenerated,
		Status:            computation.Status,
		Metadata:          metadata,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Upsert(ctx, s.db, record); err != nil {
		log.Error("snapshot.persist_failed", zap.Error(err))
		return nil, err
	}

	stored, err := s.repo.FindByDate(ctx, s.db, record.SnapshotDate)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		stored = record
	}

	s.metrics.RecordSnapshot(ctx, string(stored.Status))
	log.Info("snapshot.computed",
		zap.String("status", string(stored.Status)),
		zap.Int64("total_orders", stored.TotalOrders),
		zap.Int64("alerts_generated", stored.AlertsGenerated),
		zap.Strings("degraded_sources", computation.Metadata.DegradedSources),
	)
	return toResponse(stored), nil
}

func (s *Service) ComputePreviousDay(ctx context.Context) (*snapshotdomain.Response, bool, error) {
	loc := s.kpi.Get().Location()
	yesterday := s.clock.Now().In(loc).AddDate(0, 0, -1).Format(snapshotdomain.DateLayout)

	existing, err := s.repo.FindByDate(ctx, s.db, yesterday)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.Status == snapshotdomain.StatusOK {
		obslogger.WithContext(ctx, s.log).Debug("snapshot.already_computed", zap.String("snapshot_date", yesterday))
		return toResponse(existing), false, nil
	}

	resp, err := s.ComputeAndPersistDailySnapshot(ctx, yesterday)
	if err != nil {
		return nil, false, err
	}
	return resp, true, nil
}

func (s *Service) GetByDate(ctx context.Context, date string) (*snapshotdomain.Response, error) {
	day, err := snapshotdomain.ParseDate(strings.TrimSpace(date))
	if err != nil {
		return nil, err
	}
	item, err := s.repo.FindByDate(ctx, s.db, day.Format(snapshotdomain.DateLayout))
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, snapshotdomain.ErrNotFound
	}
	return toResponse(item), nil
}

func (s *Service) List(ctx context.Context, req snapshotdomain.ListRequest) ([]snapshotdomain.Response, error) {
	from, to, err := s.resolveRange(req.From, req.To)
	if err != nil {
		return nil, err
	}
	limit := req.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	items, err := s.repo.ListRange(ctx, s.db, from, to, "", limit)
	if err != nil {
		return nil, err
	}
	resp := make([]snapshotdomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, *toResponse(&items[i]))
	}
	return resp, nil
}

// resolveRange defaults to the trailing 30 days ending yesterday.
func (s *Service) resolveRange(rawFrom, rawTo string) (string, string, error) {
	loc := s.kpi.Get().Location()
	today := s.clock.Now().In(loc)

	to := today.AddDate(0, 0, -1)
	if v := strings.TrimSpace(rawTo); v != "" {
		parsed, err := snapshotdomain.ParseDate(v)
		if err != nil {
			return "", "", err
		}
		to = parsed
	}
	from := to.AddDate(0, 0, -(defaultListLimit - 1))
	if v := strings.TrimSpace(rawFrom); v != "" {
		parsed, err := snapshotdomain.ParseDate(v)
		if err != nil {
			return "", "", err
		}
		from = parsed
	}
	fromKey := from.Format(snapshotdomain.DateLayout)
	toKey := to.Format(snapshotdomain.DateLayout)
	if fromKey > toKey {
		return "", "", snapshotdomain.ErrInvalidRange
	}
	return fromKey, toKey, nil
}

func toResponse(s *snapshotdomain.Snapshot) *snapshotdomain.Response {
	resp := &snapshotdomain.Response{
		ID:                s.ID.String(),
		SnapshotDate:      s.SnapshotDate,
		TotalRevenue:      s.TotalRevenue.StringFixed(2),
		TotalOrders:       s.TotalOrders,
		AvgServiceMinutes: s.AvgServiceMinutes.StringFixed(2),
		RotationIndex:     s.RotationIndex.StringFixed(2),
		AvgTicket:         s.AvgTicket.StringFixed(2),
		AlertsGenerated:   s.AlertsGenerated,
		Status:            s.Status,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
	if len(s.Metadata) > 0 {
		var meta snapshotdomain.Metadata
		if err := json.Unmarshal(s.Metadata, &meta); err == nil {
			resp.Metadata = &meta
		}
	}
	return resp
}
