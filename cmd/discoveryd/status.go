package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/jonesrussell/thoth-discovery/internal/scheduler"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduler status and upcoming runs",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) error {
	var result scheduler.Status
	var fetchErr error

	app := newApp(fx.Invoke(func(lc fx.Lifecycle, s *scheduler.Scheduler) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				result, fetchErr = s.Status(ctx)
				return nil
			},
		})
	}))

	ctx := cmd.Context()
	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("discoveryd: start: %w", err)
	}
	defer app.Stop(ctx) //nolint:errcheck

	if fetchErr != nil {
		return fmt.Errorf("discoveryd: status: %w", fetchErr)
	}

	printStatus(result)
	return nil
}

func printStatus(s scheduler.Status) {
	fmt.Printf("running: %v   sources: %d/%d enabled\n\n", s.Running, s.SourcesEnabled, s.SourcesTotal)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleRounded)
	t.Style().Options.SeparateColumns = true
	t.Style().Options.SeparateRows = false
	t.Style().Options.SeparateHeader = true

	pad := text.Transformer(func(val any) string {
		return fmt.Sprintf("%v", val)
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Source", WidthMax: 40, Transformer: pad},
		{Name: "Next Run", WidthMax: 30, Align: text.AlignLeft, Transformer: pad},
	})

	t.AppendHeader(table.Row{"Source", "Next Run"})
	for _, run := range s.NextRuns {
		t.AppendRow(table.Row{run.SourceName, run.NextRunAt.Format("2006-01-02 15:04:05 MST")})
	}
	t.Render()
}
