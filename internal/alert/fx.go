package alert

import (
	"github.com/smallbiznis/opspulse/internal/alert/repository"
	"github.com/smallbiznis/opspulse/internal/alert/service"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/upstream"
	"go.uber.org/fx"
)

var Module = fx.Module("alert.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)

// JobModule registers the live metric evaluator with the worker pool.
var JobModule = fx.Module("alert.job",
	fx.Provide(func(src *upstream.DegradingSource) service.LiveSource { return src }),
	fx.Provide(queue.AsHandler(service.NewEvaluator)),
)
