package cmd

import (
	"github.com/spf13/cobra"
)

const FILESET_SYNC_VERSION = "0.1.0"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "fileset-sync",
	Short: "fileset-sync keeps a local directory in step with a remote time-bucketed fileset",
	Long: `fileset-sync syncs a local directory with a remote, time-bucketed, manifest-published
fileset. It periodically refetches the manifest, downloads what is missing with bounded
concurrency and digest verification, prunes files made obsolete or redundant by coarser
siblings, and atomically rewrites the local manifest so downstream consumers always see
a consistent view of the destination directory.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.Version = FILESET_SYNC_VERSION
	rootCmd.SetVersionTemplate("fileset-sync version {{ .Version }}\n")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to the fileset-sync configuration file")
}

func Execute() error {
	return rootCmd.Execute()
}
