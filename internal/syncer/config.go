package syncer

import (
	"time"

	"github.com/farsightsec/fileset-sync/internal/config"
)

// FromFilesetConfig adapts a validated config.FilesetConfig into the
// Config a Coordinator consumes, parsing its duration strings and
// resolving its API key file. Validate is assumed to have already run
// against f, so duration parse errors here would indicate a bug in
// Validate rather than bad input.
func FromFilesetConfig(f config.FilesetConfig) (Config, error) {
	apiKey, err := f.APIKey()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		FilesetURI:            f.FilesetURI,
		Destination:           f.Destination,
		Base:                  f.Base,
		Extension:             f.Extension,
		MaxDownloads:          f.MaxDownloads,
		APIKey:                apiKey,
		Validator:             f.Validator,
		DigestRequired:        f.DigestRequired,
		Minimal:               f.Minimal,
		RemoteRefreshSchedule: f.RemoteRefreshSchedule,
		ContentEncoding:       f.ContentEncoding,
		EncryptionKeyFile:     f.EncryptionKeyFile,
	}

	if f.Frequency != "" {
		cfg.Frequency, err = time.ParseDuration(f.Frequency)
		if err != nil {
			return Config{}, err
		}
	}
	if f.RetryTimeout != "" {
		cfg.RetryTimeout, err = time.ParseDuration(f.RetryTimeout)
		if err != nil {
			return Config{}, err
		}
	}
	if f.DownloadTimeout != "" {
		cfg.DownloadTimout, err = time.ParseDuration(f.DownloadTimeout)
		if err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}
