package admin

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

// SnapshotCmd returns the snapshot command group
func SnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Export or import the vector store snapshot",
		Long: `Export or import the vector store snapshot that serve reads at startup
and writes at shutdown when DOCCHAT_SNAPSHOT_PATH is set.`,
	}

	cmd.AddCommand(snapshotExportCmd())
	cmd.AddCommand(snapshotImportCmd())

	return cmd
}

func snapshotExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Write the stored embeddings to a snapshot file",
		Long:  "Build the vector store from the database and write it to path, or to DOCCHAT_SNAPSHOT_PATH when no path is given.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := exitOnSignal()
			defer stop()

			a, err := newApp(ctx, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.close()

			path, err := snapshotTarget(args, a.cfg.SnapshotPath)
			if err != nil {
				return err
			}

			added, err := a.pipeline.LoadStored(ctx)
			if err != nil {
				return err
			}
			if err := a.pipeline.Snapshot(path); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Exported %d entries to %s\n", added, path)
			return nil
		},
	}
}

func snapshotImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Install a snapshot file for serve to load",
		Long:  "Validate a snapshot file and copy it to DOCCHAT_SNAPSHOT_PATH, where serve restores it at the next startup.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := exitOnSignal()
			defer stop()

			a, err := newApp(ctx, appOptions{migrate: false})
			if err != nil {
				return err
			}
			defer a.close()

			target, err := snapshotTarget(nil, a.cfg.SnapshotPath)
			if err != nil {
				return err
			}

			restored, err := a.pipeline.Restore(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot: %w", err)
			}
			if !restored {
				return fmt.Errorf("snapshot %s does not exist", args[0])
			}
			if err := a.pipeline.Snapshot(target); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", a.pipeline.Store().Count(), target)
			return nil
		},
	}
}

func snapshotTarget(args []string, configured string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	if configured == "" {
		return "", errors.New("no snapshot path: pass one or set DOCCHAT_SNAPSHOT_PATH")
	}
	return configured, nil
}
