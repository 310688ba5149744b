package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farsightsec/fileset-sync/internal/config"
	"github.com/farsightsec/fileset-sync/internal/fileset"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report local fileset state without fetching the remote manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return err
		}
		cfg := config.Get()

		for _, fc := range cfg.Filesets {
			local, err := fileset.ScanLocal(fc.Destination, fc.Base, fc.Extension)
			if err != nil {
				return fmt.Errorf("status: scanning %s: %w", fc.Destination, err)
			}

			overlap := fileset.Overlap(local)
			tmp, err := fileset.ListTemporaryFiles(fc.Destination, fc.Base, fc.Extension)
			if err != nil {
				return fmt.Errorf("status: listing tempfiles in %s: %w", fc.Destination, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s):\n", fc.ID, fc.Destination)
			fmt.Fprintf(out, "  local files:      %d\n", len(local))
			fmt.Fprintf(out, "  redundant:        %d\n", len(overlap))
			fmt.Fprintf(out, "  pending tempfiles: %d\n", len(tmp))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
