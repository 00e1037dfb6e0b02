package metrics

import "go.uber.org/fx"

// Module provides the ingest metrics collectors.
var Module = fx.Module("metrics",
	fx.Provide(New),
)
