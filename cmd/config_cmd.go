package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/farsightsec/fileset-sync/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration file utilities",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Load and validate the configuration file without starting any fileset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return err
		}
		cfg := config.Get()
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "configuration OK: %d fileset(s) configured\n", len(cfg.Filesets))
		for _, fc := range cfg.Filesets {
			fmt.Fprintf(out, "  %s: %s -> %s\n", fc.ID, fc.FilesetURI, fc.Destination)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configValidateCmd)
}
