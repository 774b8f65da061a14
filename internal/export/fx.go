package export

import (
	"github.com/smallbiznis/opspulse/internal/export/repository"
	"github.com/smallbiznis/opspulse/internal/export/service"
	"github.com/smallbiznis/opspulse/internal/queue"
	"github.com/smallbiznis/opspulse/internal/scheduler"
	"go.uber.org/fx"
)

var Module = fx.Module("export.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(s *scheduler.Scheduler) service.Submitter { return s }),
	fx.Provide(service.New),
)

// JobModule registers the export handler with the worker pool.
var JobModule = fx.Module("export.job",
	fx.Provide(queue.AsHandler(service.NewRunJob)),
)
