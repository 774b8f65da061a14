package snapshot

import (
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/snapshot/repository"
	"github.com/smallbiznis/opspulse/internal/snapshot/service"
	"github.com/smallbiznis/opspulse/internal/upstream"
	"go.uber.org/fx"
)

var Module = fx.Module("snapshot.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(src *upstream.DegradingSource) service.EventSource { return src }),
	fx.Provide(service.New),
)

// JobModule registers the daily snapshot handler with the worker pool.
var JobModule = fx.Module("snapshot.job",
	fx.Provide(queue.AsHandler(service.NewDailyJob)),
)
