package config

import "go.uber.org/fx"

// Module provides the config package's dependencies for fx-based wiring.
var Module = fx.Module("config",
	fx.Provide(Load),
)
