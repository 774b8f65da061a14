package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/config"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	"github.com/smallbiznis/opspulse/internal/notification"
	"github.com/smallbiznis/opspulse/internal/observability"
	obsmiddleware "github.com/smallbiznis/opspulse/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	obstracing "github.com/smallbiznis/opspulse/internal/observability/tracing"
	"github.com/smallbiznis/opspulse/internal/ratelimit"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	snapshotSvc   snapshotdomain.Service
	thresholdSvc  thresholddomain.Service
	alertSvc      alertdomain.Service
	exportSvc     exportdomain.Service
	alertHub      *notification.Hub
	exportLimiter *ratelimit.ExportSubmitLimiter
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	SnapshotSvc   snapshotdomain.Service
	ThresholdSvc  thresholddomain.Service
	AlertSvc      alertdomain.Service
	ExportSvc     exportdomain.Service
	AlertHub      *notification.Hub              `optional:"true"`
	ExportLimiter *ratelimit.ExportSubmitLimiter `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		snapshotSvc:   p.SnapshotSvc,
		thresholdSvc:  p.ThresholdSvc,
		alertSvc:      p.AlertSvc,
		exportSvc:     p.ExportSvc,
		alertHub:      p.AlertHub,
		exportLimiter: p.ExportLimiter,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Snapshots --------
	api.GET("/snapshots", s.ListSnapshots)
	api.GET("/snapshots/:date", s.GetSnapshot)
	api.POST("/snapshots/:date/compute", s.ComputeSnapshot)

	// -------- Metrics & Alerts --------
	api.POST("/metrics/evaluate", s.EvaluateMetric)
	api.GET("/alerts", s.ListAlerts)
	api.GET("/alerts/stream", s.StreamAlerts)

	// -------- Thresholds --------
	api.GET("/thresholds", s.ListThresholds)
	api.PUT("/thresholds/:metric", s.UpdateThreshold)
	api.GET("/thresholds/:metric", s.GetThreshold)
	api.GET("/thresholds/:metric/history", s.ListThresholdHistory)

	// -------- Exports --------
	api.POST("/exports", s.ExportSubmitRateLimit(), s.SubmitExport)
	api.GET("/exports/:id", s.GetExportStatus)
}
