// Package main implements discoveryd, the discovery core's daemon: its run
// subcommand runs the Scheduler until interrupted, and its status and
// trigger subcommands each build their own Scheduler over the same stores
// rather than talking to a running `run` process.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/jonesrussell/thoth-discovery/internal/browserengine"
	"github.com/jonesrussell/thoth-discovery/internal/config"
	"github.com/jonesrussell/thoth-discovery/internal/esclient"
	"github.com/jonesrussell/thoth-discovery/internal/logger"
	"github.com/jonesrussell/thoth-discovery/internal/manager"
	"github.com/jonesrussell/thoth-discovery/internal/ratelimiter"
	"github.com/jonesrussell/thoth-discovery/internal/resultstore"
	"github.com/jonesrussell/thoth-discovery/internal/scheduler"
	"github.com/jonesrussell/thoth-discovery/internal/sourceconfig"
)

const defaultShutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "discoveryd",
	Short: "Multi-source academic paper discovery daemon",
	Long: `discoveryd runs the scheduled discovery core: it evaluates every
active source's schedule, dispatches due runs to the discovery manager, and
persists each run's outcome.`,
}

func main() {
	rootCmd.AddCommand(runCmd, statusCmd, triggerCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// baseModules wires every module needed to construct a Scheduler, shared by
// every subcommand so `status`/`trigger` observe the same state a running
// `run` would.
var baseModules = fx.Options(
	config.Module,
	fx.Provide(
		func(cfg *config.Config) bool { return cfg.Logger.Debug },
		func(cfg *config.Config) string { return cfg.Logger.Level },
	),
	logger.Module,
	esclient.Module,
	ratelimiter.Module,
	sourceconfig.Module,
	browserengine.Module,
	manager.Module,
	resultstore.Module,
	scheduler.Module,
)

func newApp(extra ...fx.Option) *fx.App {
	opts := append([]fx.Option{
		baseModules,
		fx.WithLogger(func(log logger.Interface) fxevent.Logger {
			return &discardFxLogger{}
		}),
	}, extra...)
	return fx.New(opts...)
}

// discardFxLogger silences fx's own event stream; discoveryd logs through
// the structured logger instead.
type discardFxLogger struct{}

func (discardFxLogger) LogEvent(fxevent.Event) {}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the scheduler and run until interrupted",
	RunE:  runRun,
}

func runRun(cmd *cobra.Command, _ []string) error {
	var store *sourceconfig.Store
	app := newApp(fx.Populate(&store))

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("discoveryd: start: %w", err)
	}
	if err := store.Reconcile(ctx); err != nil {
		return fmt.Errorf("discoveryd: reconcile sources: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer stopCancel()
	return app.Stop(stopCtx)
}
