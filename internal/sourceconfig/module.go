package sourceconfig

import (
	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/esclient"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
)

// Module provides the sourceconfig package's dependencies for fx-based
// wiring.
var Module = fx.Module("sourceconfig",
	fx.Provide(provideStore, provideScheduleStateStore),
)

func provideStore(cfg *config.Config, db *esclient.Client, log logger.Interface) *Store {
	return NewStore(cfg.SourcesDir, db, log)
}

func provideScheduleStateStore(db *esclient.Client) *ScheduleStateStore {
	return NewScheduleStateStore(db)
}
