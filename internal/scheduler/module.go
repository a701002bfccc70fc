package scheduler

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/contextanalyzer"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/paper"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

// Module provides the Scheduler and, when scheduler.auto_start is set,
// starts it automatically at process boot.
var Module = fx.Module("scheduler",
	fx.Provide(provideScheduler),
)

func provideScheduler(
	lc fx.Lifecycle,
	configs *sourceconfig.Store,
	states *sourceconfig.ScheduleStateStore,
	mgr *manager.Manager,
	cfg *config.Config,
	log logger.Interface,
) *Scheduler {
	corpus := func(context.Context, string) (*contextanalyzer.CorpusContext, error) {
		return contextanalyzer.AnalyzeCorpus(func() (*paper.Paper, bool) { return nil, false }), nil
	}

	s := New(configs, states, mgr, corpus, log, Config{
		PollInterval:   cfg.PollInterval(),
		WorkerPoolSize: cfg.Scheduler.WorkerPoolSize,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if !cfg.Scheduler.AutoStart {
				return nil
			}
			return s.Start(ctx)
		},
		OnStop: func(context.Context) error {
			return s.Stop(10 * time.Second)
		},
	})

	return s
}
