package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/opspulse/internal/cache"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	currentCacheTTL     = 5 * time.Second
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Repo  thresholddomain.Repository
	Clock clock.Clock
	KPI   *config.KPIConfigHolder
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	repo  thresholddomain.Repository
	clock clock.Clock
	kpi   *config.KPIConfigHolder

	// current caches lookups for the alert hot path. A missing threshold is
	// cached as nil.
	current cache.Cache[string, *thresholddomain.Threshold]

	// gens counts invalidations per key. Current only caches a read if no
	// update landed while it was in flight.
	mu   sync.Mutex
	gens map[string]uint64
}

func New(p Params) thresholddomain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("threshold.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   p.Clock,
		kpi:     p.KPI,
		current: cache.NewTTLCache[string, *thresholddomain.Threshold](cache.WithNow(p.Clock.Now)),
		gens:    make(map[string]uint64),
	}
}

func (s *Service) UpdateThreshold(ctx context.Context, req thresholddomain.UpdateRequest) (*thresholddomain.Response, error) {
	key := thresholddomain.NormalizeKey(req.MetricKey)
	if key == "" || !s.kpi.Get().AllowsMetric(key) {
		return nil, thresholddomain.ErrInvalidMetricKey
	}
	if !validLevel(req.Warning) {
		return nil, thresholddomain.ErrInvalidWarning
	}
	if !validLevel(req.Critical) {
		return nil, thresholddomain.ErrInvalidCritical
	}
	if req.Warning >= req.Critical {
		return nil, thresholddomain.ErrInvalidOrder
	}

	t := &thresholddomain.Threshold{
		ID:        s.genID.Generate(),
		MetricKey: key,
		Warning:   req.Warning,
		Critical:  req.Critical,
		CreatedAt: s.clock.Now().UTC(),
	}
	if actor := strings.TrimSpace(req.Actor); actor != "" {
		t.Actor = &actor
	}

	if err := s.repo.Insert(ctx, s.db, t); err != nil {
		return nil, err
	}
	s.invalidate(key)

	obslogger.WithContext(ctx, s.log).Info("threshold.updated",
		zap.String("metric_key", key),
		zap.Float64("warning", t.Warning),
		zap.Float64("critical", t.Critical),
		zap.String("threshold_id", t.ID.String()),
	)
	resp := thresholddomain.ToResponse(t)
	return &resp, nil
}

func (s *Service) Current(ctx context.Context, metricKey string) (*thresholddomain.Threshold, error) {
	key := thresholddomain.NormalizeKey(metricKey)
	if key == "" {
		return nil, thresholddomain.ErrInvalidMetricKey
	}
	if t, ok := s.current.Get(key); ok {
		return t, nil
	}
	gen := s.generation(key)
	t, err := s.repo.FindCurrent(ctx, s.db, key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.gens[key] == gen {
		s.current.Set(key, t, currentCacheTTL)
	}
	s.mu.Unlock()
	return t, nil
}

func (s *Service) generation(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gens[key]
}

func (s *Service) invalidate(key string) {
	s.mu.Lock()
	s.gens[key]++
	s.current.Delete(key)
	s.mu.Unlock()
}

func (s *Service) History(ctx context.Context, metricKey string, limit int) ([]thresholddomain.Response, error) {
	key := thresholddomain.NormalizeKey(metricKey)
	if key == "" {
		return nil, thresholddomain.ErrInvalidMetricKey
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	items, err := s.repo.ListHistory(ctx, s.db, key, limit)
	if err != nil {
		return nil, err
	}
	resp := make([]thresholddomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, thresholddomain.ToResponse(&items[i]))
	}
	return resp, nil
}

func (s *Service) ListCurrent(ctx context.Context) ([]thresholddomain.Response, error) {
	items, err := s.repo.ListCurrent(ctx, s.db)
	if err != nil {
		return nil, err
	}
	resp := make([]thresholddomain.Response, 0, len(items))
	for i := range items {
		resp = append(resp, thresholddomain.ToResponse(&items[i]))
	}
	return resp, nil
}

func validLevel(v float64) bool {
	return v >= 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
