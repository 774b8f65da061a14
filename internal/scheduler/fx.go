package scheduler

import (
	"context"

	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
)

// TimersModule starts the recurring pipeline jobs with the application.
var TimersModule = fx.Module("scheduler.timers",
	fx.Invoke(RegisterTimers),
)

func RegisterTimers(lc fx.Lifecycle, sched *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			return sched.StartDefaults()
		},
		OnStop: func(context.Context) error {
			sched.StopAll()
			return nil
		},
	})
}

// StartDefaults registers the daily snapshot and live alert evaluation timers
// that are enabled in config.
func (s *Scheduler) StartDefaults() error {
	defaults := []struct {
		name string
		spec string
	}{
		{name: snapshotdomain.DailyQueue, spec: s.cfg.Snapshot},
		{name: alertdomain.EvaluateQueue, spec: s.cfg.AlertEvaluation},
	}
	for _, d := range defaults {
		if !s.isJobEnabled(d.name) {
			s.log.Info("scheduler.timer.disabled", zap.String("job", d.name))
			continue
		}
		if _, err := s.Start(d.name, Recurring{Spec: d.spec}); err != nil {
			return err
		}
	}
	return nil
}
