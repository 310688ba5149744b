// Package syncer implements the per-destination synchronization loop from
// SPEC_FULL.md §4.7: periodic manifest refresh, diffing against local
// state, enqueueing missing files, pruning, and atomic manifest rewrite.
package syncer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/farsightsec/fileset-sync/internal/apperrors"
	"github.com/farsightsec/fileset-sync/internal/download"
	"github.com/farsightsec/fileset-sync/internal/fetch"
	"github.com/farsightsec/fileset-sync/internal/fileset"
	"github.com/farsightsec/fileset-sync/internal/logger"
	"github.com/farsightsec/fileset-sync/internal/notify"
)

// Config is the configuration surface consumed by the core, per
// SPEC_FULL.md §6.
type Config struct {
	FilesetURI     string
	Destination    string
	Base           string
	Extension      string
	Frequency      time.Duration
	DownloadTimout time.Duration
	RetryTimeout   time.Duration
	MaxDownloads   int
	APIKey         string
	Validator      string
	DigestRequired bool
	Minimal        bool

	// RemoteRefreshSchedule, if set, is a cron expression (standard
	// syntax or "@every ...") that overrides the fixed Frequency
	// interval for triggering a remote manifest refetch.
	RemoteRefreshSchedule string

	// ContentEncoding, if set ("gzip" or "zstd"), is decompressed from
	// every downloaded member before digest verification.
	ContentEncoding string
	// EncryptionKeyFile, if set, decrypts every downloaded member before
	// ContentEncoding is applied and before digest verification.
	EncryptionKeyFile string
}

// Coordinator owns one fileset's synchronization loop and download
// manager. Exactly one of each exists per fileset, per SPEC_FULL.md §5.
type Coordinator struct {
	cfg     Config
	state   *fileset.State
	manager *download.Manager
	client  *fetch.Client
	log     *logger.Logger
	notify  notify.Notifier

	schedule cron.Schedule

	nextRemoteRefresh time.Time
}

// New constructs a Coordinator, validating the configuration fields that
// are fatal to this fileset alone (per SPEC_FULL.md §4.8/§7, TypeConfig).
func New(cfg Config, n notify.Notifier, log *logger.Logger) (*Coordinator, error) {
	if cfg.Extension == "" {
		cfg.Extension = "mtbl"
	}
	if cfg.Frequency <= 0 {
		cfg.Frequency = 30 * time.Minute
	}
	if cfg.RetryTimeout <= 0 {
		cfg.RetryTimeout = 60 * time.Second
	}
	if cfg.MaxDownloads <= 0 {
		cfg.MaxDownloads = 4
	}
	if cfg.Base == "" {
		base, err := baseFromURI(cfg.FilesetURI)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.TypeConfig, "unable to derive fileset prefix from URI", "set `base` explicitly in the fileset configuration")
		}
		cfg.Base = base
	}

	info, err := os.Stat(cfg.Destination)
	if err != nil || !info.IsDir() {
		return nil, apperrors.New(apperrors.TypeConfig, fmt.Sprintf("destination %q is not a directory", cfg.Destination), "create the destination directory before starting this fileset")
	}

	if log == nil {
		log = logger.New(logger.Config{})
	}
	log = log.With("fileset", cfg.Base, "destination", cfg.Destination)

	var schedule cron.Schedule
	if cfg.RemoteRefreshSchedule != "" {
		schedule, err = cron.ParseStandard(cfg.RemoteRefreshSchedule)
		if err != nil {
			// ParseStandard rejects "@every ..." and descriptor forms
			// ("@hourly"); fall back to the general parser for those.
			parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
			schedule, err = parser.Parse(cfg.RemoteRefreshSchedule)
			if err != nil {
				return nil, apperrors.Wrap(err, apperrors.TypeConfig, "invalid remote_refresh_schedule", "use standard cron syntax or an \"@every\" duration")
			}
		}
	}

	client := fetch.NewClient(cfg.DownloadTimout, cfg.APIKey)

	manager := download.NewManager(client, download.Options{
		MaxDownloads:      cfg.MaxDownloads,
		RetryTimeout:      cfg.RetryTimeout,
		DigestRequired:    cfg.DigestRequired,
		Validator:         cfg.Validator,
		ContentEncoding:   cfg.ContentEncoding,
		EncryptionKeyFile: cfg.EncryptionKeyFile,
		Progress:          download.NewTerminalProgress(),
		Logger:            log,
	})

	return &Coordinator{
		cfg:      cfg,
		state:    fileset.NewState(cfg.Base, cfg.Extension, cfg.Minimal),
		manager:  manager,
		client:   client,
		log:      log,
		notify:   n,
		schedule: schedule,
	}, nil
}

func baseFromURI(uri string) (string, error) {
	// The prefix defaults to the basename of the manifest URI's path,
	// stripped of its extension, e.g. "https://host/dns.fileset" -> "dns".
	last := uri
	for i := len(uri) - 1; i >= 0; i-- {
		if uri[i] == '/' {
			last = uri[i+1:]
			break
		}
	}
	if last == "" {
		return "", fmt.Errorf("cannot derive a prefix from URI %q", uri)
	}
	for i := 0; i < len(last); i++ {
		if last[i] == '.' {
			return last[:i], nil
		}
	}
	return last, nil
}

// Run executes the synchronization loop until ctx is cancelled. Per
// SPEC_FULL.md §5, the loop's own control flow is not directly
// cancellable mid-iteration (every side effect within an iteration is
// rename-atomic, so an interrupted iteration never corrupts state); ctx
// is honored between iterations and passed to the HTTP client so in-flight
// requests unwind promptly.
func (c *Coordinator) Run(ctx context.Context) {
	c.manager.Start()
	defer c.manager.Stop(true, 30*time.Second)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		c.tick(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// tick runs exactly one iteration of the loop in SPEC_FULL.md §4.7:
// {local-scan, remote-fetch, diff, prune, write manifest, purge}, strictly
// in that order.
func (c *Coordinator) tick(ctx context.Context) {
	runID := uuid.NewString()
	log := c.log.With("run_id", runID)

	local, err := fileset.ScanLocal(c.cfg.Destination, c.cfg.Base, c.cfg.Extension)
	if err != nil {
		log.Warn("local directory scan failed", "error", err)
	} else {
		c.state.AllLocal = local
		c.state.MinimalLocal = local.Clone()
	}

	now := time.Now()
	if c.dueForRemoteRefresh(now) {
		if err := c.refreshRemote(ctx); err != nil {
			log.Warn("remote manifest fetch failed, backing off", "error", err, "retry_timeout", c.cfg.RetryTimeout)
			c.nextRemoteRefresh = now.Add(c.cfg.RetryTimeout)
		} else {
			c.nextRemoteRefresh = c.nextRefreshTime(now)
		}
	}

	missing := c.state.MissingFiles()
	for k, f := range missing {
		f.Directory = c.cfg.Destination
		missing[k] = f
	}
	c.manager.EnqueueMissing(missing)

	c.state.PruneObsolete()
	c.state.PruneRedundant()

	if err := fileset.WriteManifest(c.cfg.Destination, c.cfg.Base, true, c.state.MinimalLocal); err != nil {
		log.Warn("failed to write minimal manifest", "error", err)
	}
	if !c.cfg.Minimal {
		if err := fileset.WriteManifest(c.cfg.Destination, c.cfg.Base, false, c.state.AllLocal); err != nil {
			log.Warn("failed to write full manifest", "error", err)
		}
	}

	pruned := len(c.state.PendingDeletions)
	c.purgeDeleted(log)
	c.sweepTempfiles(log)

	if c.notify != nil && (len(missing) > 0 || pruned > 0) {
		c.notify.Notify(ctx, notify.Event{
			RunID:       runID,
			Fileset:     c.cfg.Base,
			Downloaded:  len(missing),
			Pruned:      pruned,
			Destination: c.cfg.Destination,
		})
	}
}

func (c *Coordinator) dueForRemoteRefresh(now time.Time) bool {
	return now.After(c.nextRemoteRefresh) || now.Equal(c.nextRemoteRefresh)
}

func (c *Coordinator) nextRefreshTime(now time.Time) time.Time {
	if c.schedule != nil {
		return c.schedule.Next(now)
	}
	return now.Add(c.cfg.Frequency)
}

func (c *Coordinator) refreshRemote(ctx context.Context) error {
	body, err := c.client.FetchManifest(ctx, c.cfg.FilesetURI)
	if err != nil {
		return err
	}

	entries, rejected, err := fileset.ParseManifest(bytes.NewReader(body), c.cfg.Base, c.cfg.Extension)
	if err != nil {
		return err
	}
	if rejected > 0 {
		c.log.Warn("rejected malformed manifest entries", "count", rejected)
	}

	remote := fileset.NewSet()
	for _, d := range entries {
		d.SourceURI = fileset.RelativeURI(c.cfg.FilesetURI, d.Name)
		d.Directory = c.cfg.Destination
		remote.Add(d)
	}
	c.state.Remote = remote
	return nil
}

func (c *Coordinator) purgeDeleted(log *logger.Logger) {
	for _, f := range fileset.Sorted(c.state.PendingDeletions) {
		path := c.cfg.Destination + "/" + f.Name
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to unlink pruned file", "path", path, "error", err)
			continue
		}
		c.state.PendingDeletions.Remove(f)
	}
}

// sweepTempfiles unlinks hidden tempfiles that are not currently open by
// any process on the host, reclaiming artifacts abandoned by a crashed
// agent without disturbing an active download from another instance.
func (c *Coordinator) sweepTempfiles(log *logger.Logger) {
	files, err := fileset.ListTemporaryFiles(c.cfg.Destination, c.cfg.Base, c.cfg.Extension)
	if err != nil {
		log.Warn("tempfile sweep failed to list candidates", "error", err)
		return
	}
	for _, f := range files {
		if isOpenElsewhere(f) {
			continue
		}
		if err := os.Remove(f); err != nil && !os.IsNotExist(err) {
			log.Warn("failed to sweep tempfile", "path", f, "error", err)
		}
	}
}
