package queue

import (
	"context"

	"go.uber.org/fx"
)

const handlerGroup = `group:"queue.handlers"`

// Module provides the producer side of the queue.
var Module = fx.Module("queue",
	fx.Provide(ProvideConfig),
	fx.Provide(NewStore),
	fx.Provide(func(s *Store) Enqueuer { return s }),
)

// WorkerModule runs the worker pool over every handler in the queue.handlers group.
var WorkerModule = fx.Module("queue.worker",
	fx.Provide(provideRegistry),
	fx.Provide(NewWorker),
	fx.Invoke(RunWorker),
)

// AsHandler annotates a constructor so its result joins the handler group.
func AsHandler(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(Handler)),
		fx.ResultTags(handlerGroup),
	)
}

type registryParams struct {
	fx.In

	Handlers []Handler `group:"queue.handlers"`
}

func provideRegistry(p registryParams) (*Registry, error) {
	return NewRegistry(p.Handlers...)
}

func RunWorker(lc fx.Lifecycle, w *Worker) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			w.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return w.Stop(ctx)
		},
	})
}
