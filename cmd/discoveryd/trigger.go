package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/scheduler"
)

var triggerCmd = &cobra.Command{
	Use:   "trigger [source_name]",
	Short: "Dispatch an immediate run for one source, bypassing its schedule",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrigger,
}

func runTrigger(cmd *cobra.Command, args []string) error {
	sourceName := args[0]
	var triggerErr error

	app := newApp(fx.Invoke(func(lc fx.Lifecycle, s *scheduler.Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				triggerErr = s.Trigger(ctx, sourceName)
				return nil
			},
		})
	}))

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("discoveryd: start: %w", err)
	}
	defer app.Stop(ctx) //nolint:errcheck

	if triggerErr != nil {
		return fmt.Errorf("discoveryd: trigger: %w", triggerErr)
	}

	fmt.Printf("triggered: %s\n", sourceName)
	return nil
}
