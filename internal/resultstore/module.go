package resultstore

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/esclient"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
)

// sweepInterval is how often the retention sweep re-runs once started.
const sweepInterval = 24 * time.Hour

// Module provides the DiscoveryResult store and schedules its periodic
// retention sweep.
var Module = fx.Module("resultstore",
	fx.Provide(
		provideStore,
		func(s *Store) manager.ResultStore { return s },
	),
)

func provideStore(lc fx.Lifecycle, client *esclient.Client, cfg *config.Config, log logger.Interface) *Store {
	store := New(client, log, cfg.ResultRetention())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := store.EnsureIndex(ctx); err != nil {
				return err
			}
			store.StartSweep(ctx, sweepInterval)
			return nil
		},
		OnStop: func(context.Context) error {
			store.StopSweep()
			return nil
		},
	})

	return store
}
