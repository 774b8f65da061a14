package idempotency

import (
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/opspulse/internal/clock"
	"github.com/smallbiznis/opspulse/internal/config"
	obsmetrics "github.com/smallbiznis/opspulse/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("idempotency",
	fx.Provide(ProvideStore),
	fx.Provide(ProvideGate),
)

// ProvideStore uses redis when configured so keys are shared across replicas.
func ProvideStore(client *redis.Client, clk clock.Clock) Store {
	if client == nil {
		return NewMemoryStore(clk)
	}
	return NewRedisStore(client, DefaultKeyPrefix)
}

type GateParams struct {
	fx.In

	Config  config.Config
	Store   Store
	Log     *zap.Logger
	Metrics *obsmetrics.Metrics `optional:"true"`
}

func ProvideGate(p GateParams) *Gate {
	return NewGate(p.Store, p.Config.Export.IdempotencyTTL, p.Log, p.Metrics)
}
