package cmd

import (
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/farsightsec/fileset-sync/internal/apperrors"
	"github.com/farsightsec/fileset-sync/internal/config"
	"github.com/farsightsec/fileset-sync/internal/logger"
	"github.com/farsightsec/fileset-sync/internal/notify"
	"github.com/farsightsec/fileset-sync/internal/syncer"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run the synchronization loop for every configured fileset until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Initialize(configPath); err != nil {
			return err
		}
		cfg := config.Get()

		l := logger.New(logger.Config{JSON: cfg.LogJSON, NoColor: cfg.NoColor})
		ctx := logger.NewContext(cmd.Context(), l)

		if len(cfg.Filesets) == 0 {
			return apperrors.New(apperrors.TypeConfig, "no filesets are configured", "add at least one entry under \"filesets\" in the configuration file")
		}

		notifier := notify.Build(notify.Config{
			SlackWebhookURL: cfg.Notify.Slack.WebhookURL,
			SlackTemplate:   cfg.Notify.Slack.Template,
			Webhooks:        webhooksFromConfig(cfg.Notify.Webhooks),
		})

		ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var wg sync.WaitGroup
		for _, fc := range cfg.Filesets {
			syncCfg, err := syncer.FromFilesetConfig(fc)
			if err != nil {
				return err
			}

			coord, err := syncer.New(syncCfg, notifier, l.With("fileset_id", fc.ID))
			if err != nil {
				return err
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				coord.Run(ctx)
			}()
		}

		l.Info("fileset-sync started", "filesets", len(cfg.Filesets))
		wg.Wait()
		l.Info("fileset-sync shut down")
		return nil
	},
}

func webhooksFromConfig(in []config.WebhookConfig) []notify.WebhookConfig {
	out := make([]notify.WebhookConfig, len(in))
	for i, w := range in {
		out[i] = notify.WebhookConfig{URL: w.URL, Method: w.Method, Template: w.Template, Headers: w.Headers}
	}
	return out
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
