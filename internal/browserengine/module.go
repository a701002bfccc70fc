package browserengine

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
)

const sweepInterval = time.Hour

// Module provides the browser workflow engine. Construction is cheap; the
// underlying Chrome process is only launched on the first Execute call, so
// a deployment with no browser-kind source never pays for it.
var Module = fx.Module("browserengine", fx.Provide(provide))

func provide(lc fx.Lifecycle, cfg *config.Config, limiter *ratelimiter.Limiter, log logger.Interface) *Engine {
	engine := New(Config{
		MaxConcurrentContexts: cfg.Browser.MaxConcurrentContexts,
		SessionMaxAgeDays:     cfg.Browser.SessionMaxAgeDays,
		SessionDir:            cfg.SessionsDir,
		Headless:              true,
	}, limiter, log)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			engine.StartSweep(ctx, sweepInterval)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return engine.Close()
		},
	})

	return engine
}
