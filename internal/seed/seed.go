// Package seed writes bootstrap data on startup.
package seed

import (
	"context"
	"errors"
	"sort"

	"github.com/smallbiznis/opspulse/internal/config"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const seedActor = "seed"

var Module = fx.Module("seed",
	fx.Invoke(run),
)

func run(lc fx.Lifecycle, svc thresholddomain.Service, kpi *config.KPIConfigHolder, log *zap.Logger) {
	log = log.Named("seed")
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			seeded, err := EnsureDefaultThresholds(ctx, svc, kpi.Get().DefaultThresholds)
			if err != nil {
				return err
			}
			if len(seeded) > 0 {
				log.Info("default thresholds seeded", zap.Strings("metric_keys", seeded))
			}
			return nil
		},
	})
}

// EnsureDefaultThresholds writes a threshold for every configured metric that
// has none yet and returns the keys it wrote. Existing thresholds are left alone.
func EnsureDefaultThresholds(ctx context.Context, svc thresholddomain.Service, defaults map[string]config.ThresholdLevels) ([]string, error) {
	if svc == nil {
		return nil, errors.New("seed threshold service is required")
	}

	keys := make([]string, 0, len(defaults))
	for key := range defaults {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seeded := make([]string, 0, len(keys))
	for _, key := range keys {
		current, err := svc.Current(ctx, key)
		if err != nil {
			return seeded, err
		}
		if current != nil {
			continue
		}
		levels := defaults[key]
		resp, err := svc.UpdateThreshold(ctx, thresholddomain.UpdateRequest{
			MetricKey: key,
			Warning:   levels.Warning,
			Critical:  levels.Critical,
			Actor:     seedActor,
		})
		if err != nil {
			return seeded, err
		}
		seeded = append(seeded, resp.MetricKey)
	}
	return seeded, nil
}
