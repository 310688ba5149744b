package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/farsightsec/fileset-sync/internal/apperrors"
)

// Validate checks cfg against the schema in SPEC_FULL.md §4.8. The first
// violation found is returned as a TypeConfig error and rejects the whole
// document, not only the fileset it names — it is never worth starting a
// coordinator against a configuration that cannot produce a working sync
// loop.
func Validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Filesets))
	for _, f := range cfg.Filesets {
		if f.ID == "" {
			return apperrors.New(apperrors.TypeConfig, "fileset entry is missing required field \"id\"", "give every fileset entry a unique id")
		}
		if seen[f.ID] {
			return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("duplicate fileset id %q", f.ID), "fileset ids must be unique within a configuration document")
		}
		seen[f.ID] = true

		if err := validateFileset(f); err != nil {
			return err
		}
	}
	return nil
}

func validateFileset(f FilesetConfig) error {
	u, err := url.Parse(f.FilesetURI)
	if err != nil || !u.IsAbs() || !validFilesetScheme(u.Scheme) {
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: fileset_uri must be an absolute http, https, sftp, ssh, ftp, s3, or minio URL, got %q", f.ID, f.FilesetURI), "set fileset_uri to the manifest's full URL")
	}

	if f.Destination == "" {
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: destination is required", f.ID), "set destination to an existing, writable directory")
	}
	info, err := os.Stat(f.Destination)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("fileset %q: destination %q does not exist", f.ID, f.Destination), "create the destination directory before starting this fileset")
	}
	if !info.IsDir() {
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: destination %q is not a directory", f.ID, f.Destination), "point destination at a directory, not a file")
	}
	if err := checkWritable(f.Destination); err != nil {
		return apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("fileset %q: destination %q is not writable", f.ID, f.Destination), "grant this process write access to the destination directory")
	}

	if f.MaxDownloads != 0 && f.MaxDownloads < 1 {
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: max_downloads must be >= 1, got %d", f.ID, f.MaxDownloads), "set max_downloads to a positive integer, or omit it to use the default")
	}

	if err := validateDuration(f.ID, "frequency", f.Frequency); err != nil {
		return err
	}
	if err := validateDuration(f.ID, "retry_timeout", f.RetryTimeout); err != nil {
		return err
	}
	if err := validateDuration(f.ID, "download_timeout", f.DownloadTimeout); err != nil {
		return err
	}

	switch f.ContentEncoding {
	case "", "gzip", "zstd":
	default:
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: content_encoding %q is not one of \"gzip\", \"zstd\"", f.ID, f.ContentEncoding), "set content_encoding to \"gzip\", \"zstd\", or leave it unset")
	}

	return nil
}

// validFilesetScheme mirrors the scheme set storage.FromURI accepts, so
// config validate never rejects a fileset_uri that sync would dispatch fine.
func validFilesetScheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "http", "https", "sftp", "ssh", "ftp", "s3", "minio":
		return true
	default:
		return false
	}
}

func validateDuration(id, field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("fileset %q: %s %q is not a valid duration", id, field, value), "use a Go duration string, e.g. \"30m\" or \"1h\"")
	}
	if d <= 0 {
		return apperrors.New(apperrors.TypeConfig, fmt.Sprintf("fileset %q: %s must be positive, got %q", id, field, value), "set a positive duration")
	}
	return nil
}

func checkWritable(dir string) error {
	probe, err := os.CreateTemp(dir, ".fileset-sync-write-check.*")
	if err != nil {
		return err
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
