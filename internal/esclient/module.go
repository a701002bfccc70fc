package esclient

import (
	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
)

// Module provides the esclient package's dependencies for fx-based wiring.
var Module = fx.Module("esclient",
	fx.Provide(provide),
)

func provide(cfg *config.Config) (*Client, error) {
	return New(cfg.Elasticsearch)
}
