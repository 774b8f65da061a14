package pushmetrics

import (
	"context"
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("push.metrics",
	fx.Provide(NewPusher),
	fx.Provide(NewCollector),
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, cfg config.Config, pusher Pusher, collector *Collector, log *zap.Logger) {
	if pusher == nil || collector == nil {
		return
	}
	interval := cfg.PushMetrics.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("push metrics started", zap.String("exporter", cfg.PushMetrics.Exporter), zap.Duration("interval", interval))
			go func() {
				defer close(done)
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					pushOnce(ctx, collector, pusher, log)
					select {
					case <-ticker.C:
					case <-ctx.Done():
						return
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return nil
		},
	})
}

func pushOnce(ctx context.Context, collector *Collector, pusher Pusher, log *zap.Logger) {
	pushCtx, cancel := context.WithTimeout(ctx, 2*pushTimeout)
	defer cancel()

	if err := collector.Collect(pushCtx); err != nil {
		log.Warn("push metrics collect failed", zap.Error(err))
		return
	}
	if err := pusher.Push(pushCtx, collector.Registry()); err != nil {
		log.Warn("push metrics push failed", zap.Error(err))
	}
}
