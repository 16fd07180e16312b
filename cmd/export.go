package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// newExportCmd creates the 'export' subcommand, which rewrites the
// subscription files from the store without harvesting.
func newExportCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write subscription files from the stored nodes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := resolveServices(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if dryRun {
				for _, p := range rt.services.ExportPaths(time.Now()) {
					fmt.Fprintln(out, p)
				}
				return nil
			}

			report, err := rt.services.Export(cmd.Context())
			for _, f := range report.Files {
				fmt.Fprintln(out, f)
			}
			if err != nil {
				return fmt.Errorf("export: %w", err)
			}
			fmt.Fprintf(out, "exported %d nodes (%d github, %d platform) to %d files\n",
				report.Total, report.GitHub, report.Platform, len(report.Files))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the paths an export would write and exit")
	cmd.Flags().Int("limit", 0, "export at most this many newest nodes (overrides EXPORT_LIMIT)")
	return cmd
}
