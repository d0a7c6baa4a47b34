package metrics

import "go.uber.org/fx"

// Module registers the prometheus instruments.
var Module = fx.Module("observability.metrics",
	fx.Provide(New),
)
