package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newRunCmd creates the 'run' subcommand: harvest both phases, then export.
func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Harvest proxy links and export subscription files",
		Long: `Runs the GitHub phase, the platform phase and the export in order.
Failures of individual sources or batches are logged and the run continues.
An interrupt stops harvesting early; the export still runs.`,
		RunE: runRunCommand,
	}
	cmd.Flags().Bool("skip-github", false, "skip the GitHub phase (overrides RUN_GITHUB)")
	cmd.Flags().Bool("skip-platforms", false, "skip the platform phase (overrides RUN_PLATFORMS)")
	cmd.Flags().Int("workers", 0, "worker pool size (overrides MAX_WORKERS)")
	return cmd
}

func runRunCommand(cmd *cobra.Command, _ []string) error {
	rt, err := resolveServices(cmd.Context())
	if err != nil {
		return err
	}
	summary := rt.services.Run(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), summary.Table())

	if cmd.Context().Err() != nil {
		rt.logger.Warn("run interrupted", zap.Error(cmd.Context().Err()))
	}
	return nil
}
