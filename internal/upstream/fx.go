package upstream

import "go.uber.org/fx"

var Module = fx.Module("upstream",
	fx.Provide(
		fx.Annotate(NewHTTPClient, fx.As(new(Source))),
		NewPolicy,
		NewDegradingSource,
	),
)
