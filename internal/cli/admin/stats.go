package admin

import (
	"github.com/cloo-solutions/docchat/internal/cli"
	"github.com/spf13/cobra"
)

// StatsCmd returns the stats command
func StatsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show document and chunk totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := exitOnSignal()
			defer stop()

			a, err := newApp(ctx, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.close()

			// Embedding totals come from the index, so fill it first.
			if _, err := a.pipeline.LoadStored(ctx); err != nil {
				return err
			}

			stats, err := a.pipeline.Stats(ctx)
			if err != nil {
				return err
			}
			if wantsJSON(cmd) {
				return printJSON(cmd.OutOrStdout(), stats)
			}
			printStats(cmd.OutOrStdout(), stats)
			return nil
		},
	}

	return cli.WithJSONOutput(cmd)
}
