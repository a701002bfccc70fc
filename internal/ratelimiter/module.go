package ratelimiter

import "go.uber.org/fx"

// Module provides the ratelimiter package's dependencies for fx-based
// wiring.
var Module = fx.Module("ratelimiter",
	fx.Provide(New),
)
