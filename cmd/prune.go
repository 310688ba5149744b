package cmd

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/farsightsec/fileset-sync/internal/config"
	"github.com/farsightsec/fileset-sync/internal/fetch"
	"github.com/farsightsec/fileset-sync/internal/fileset"
	"github.com/farsightsec/fileset-sync/internal/logger"
)

var pruneDryRun bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Compute (and, unless --dry-run, apply) obsolete and redundant file pruning for every fileset",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return err
		}
		cfg := config.Get()

		for _, fc := range cfg.Filesets {
			if err := pruneOne(cmd, fc); err != nil {
				return fmt.Errorf("prune: fileset %q: %w", fc.ID, err)
			}
		}
		return nil
	},
}

func pruneOne(cmd *cobra.Command, fc config.FilesetConfig) error {
	local, err := fileset.ScanLocal(fc.Destination, fc.Base, fc.Extension)
	if err != nil {
		return err
	}

	apiKey, err := fc.APIKey()
	if err != nil {
		return err
	}
	client := fetch.NewClient(0, apiKey)
	body, err := client.FetchManifest(cmd.Context(), fc.FilesetURI)
	if err != nil {
		return err
	}
	remote, rejected, err := fileset.ParseManifest(bytes.NewReader(body), fc.Base, fc.Extension)
	if err != nil {
		return err
	}
	if rejected > 0 {
		logger.FromContext(cmd.Context()).Warn("rejected malformed manifest entries", "fileset_id", fc.ID, "count", rejected)
	}

	st := fileset.NewState(fc.Base, fc.Extension, fc.Minimal)
	st.AllLocal = local
	st.MinimalLocal = local.Clone()
	st.Remote = remote

	st.PruneObsolete()
	st.PruneRedundant()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d file(s) would be removed\n", fc.ID, len(st.PendingDeletions))
	for _, d := range fileset.Sorted(st.PendingDeletions) {
		fmt.Fprintf(out, "  %s\n", d.Name)
	}

	if pruneDryRun {
		return nil
	}

	for _, d := range fileset.Sorted(st.PendingDeletions) {
		path := fc.Destination + "/" + d.Name
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "report what would be pruned without deleting anything")
}
