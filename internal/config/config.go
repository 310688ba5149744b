// Package config implements the layered configuration surface described
// in SPEC_FULL.md §4.8: defaults, YAML file, environment, and flags,
// merged by viper, with fsnotify-driven hot-reload of everything except a
// fileset's identity fields.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/farsightsec/fileset-sync/internal/apperrors"
)

// Config is the top-level configuration document: global defaults plus
// one entry per synchronized fileset.
type Config struct {
	LogJSON  bool            `mapstructure:"log_json"`
	NoColor  bool            `mapstructure:"no_color"`
	Filesets []FilesetConfig `mapstructure:"filesets"`
	Notify   NotifyConfig    `mapstructure:"notifications"`
}

// FilesetConfig is one synchronized fileset's full configuration surface,
// per spec.md §6 plus the SPEC_FULL.md §4.8 additions.
type FilesetConfig struct {
	// Identity fields: changing these at runtime would orphan a running
	// Coordinator's state, so hot-reload leaves them untouched once a
	// fileset has started.
	ID          string `mapstructure:"id"`
	FilesetURI  string `mapstructure:"fileset_uri"`
	Destination string `mapstructure:"destination"`
	Base        string `mapstructure:"base"`
	Extension   string `mapstructure:"extension"`

	Frequency             string `mapstructure:"frequency"`
	RetryTimeout          string `mapstructure:"retry_timeout"`
	DownloadTimeout       string `mapstructure:"download_timeout"`
	MaxDownloads          int    `mapstructure:"max_downloads"`
	APIKeyFile            string `mapstructure:"api_key_file"`
	Validator             string `mapstructure:"validator"`
	DigestRequired        bool   `mapstructure:"digest_required"`
	Minimal               bool   `mapstructure:"minimal"`
	RemoteRefreshSchedule string `mapstructure:"remote_refresh_schedule"`

	// ContentEncoding, if set ("gzip" or "zstd"), is decompressed from
	// every downloaded member before digest verification.
	ContentEncoding string `mapstructure:"content_encoding"`
	// EncryptionKeyFile, if set, names a file holding the key used to
	// decrypt AES-GCM encrypted fileset members as they are downloaded,
	// before decompression and digest verification.
	EncryptionKeyFile string `mapstructure:"encryption_key_file"`
}

type NotifyConfig struct {
	Slack    SlackConfig     `mapstructure:"slack"`
	Webhooks []WebhookConfig `mapstructure:"webhooks"`
}

type SlackConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Template   string `mapstructure:"template"`
}

type WebhookConfig struct {
	ID       string            `mapstructure:"id"`
	URL      string            `mapstructure:"url"`
	Method   string            `mapstructure:"method"`
	Template string            `mapstructure:"template"`
	Headers  map[string]string `mapstructure:"headers"`
}

var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Initialize loads the configuration document from configPath (or the
// default search path when empty), validates it, installs it as the
// process-wide config, and arms fsnotify-driven hot-reload.
func Initialize(configPath string) error {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("fileset-sync")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".fileset-sync"))
		}
		v.AddConfigPath("/etc/fileset-sync")
	}

	v.SetEnvPrefix("DBACKUP_FILESET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_json", false)
	v.SetDefault("no_color", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return apperrors.Wrap(err, apperrors.TypeConfig, "failed to read configuration file", "check the path and YAML syntax of the configuration file")
		}
	}

	cfg, err := decodeAndValidate(v)
	if err != nil {
		return err
	}

	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()

	v.WatchConfig()
	v.OnConfigChange(func(fsnotify.Event) {
		newCfg, err := decodeAndValidate(v)
		if err != nil {
			// A bad reload is dropped without being logged (config has
			// no logger dependency of its own); Get keeps returning the
			// previous configuration.
			return
		}
		mergeIdentity(newCfg, Get())
		configMutex.Lock()
		globalConfig = newCfg
		configMutex.Unlock()
	})

	return nil
}

func decodeAndValidate(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.TypeConfig, "failed to decode configuration", "check that every field matches its documented type")
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// mergeIdentity overwrites each fileset's identity fields in fresh with
// the values from stable, by matching on ID, so a hot-reload can change
// frequency, retry_timeout, notification settings, and similar without
// disturbing a Coordinator that already started against the old identity.
func mergeIdentity(fresh, stable *Config) {
	if stable == nil {
		return
	}
	byID := make(map[string]FilesetConfig, len(stable.Filesets))
	for _, f := range stable.Filesets {
		byID[f.ID] = f
	}
	for i, f := range fresh.Filesets {
		if old, ok := byID[f.ID]; ok {
			fresh.Filesets[i].FilesetURI = old.FilesetURI
			fresh.Filesets[i].Destination = old.Destination
			fresh.Filesets[i].Base = old.Base
			fresh.Filesets[i].Extension = old.Extension
		}
	}
}

// Get returns the current process-wide configuration, or a zero-value
// Config if Initialize has not yet run.
func Get() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	if globalConfig == nil {
		return &Config{}
	}
	return globalConfig
}

// APIKey reads the API key for a fileset from its APIKeyFile, trimming
// trailing whitespace. Keys are never embedded in the YAML document
// itself, so they don't end up in config dumps or version control.
func (f FilesetConfig) APIKey() (string, error) {
	if f.APIKeyFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(f.APIKeyFile)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.TypeConfig, fmt.Sprintf("failed to read api_key_file for fileset %q", f.ID), "check that the file exists and is readable by this process")
	}
	return strings.TrimSpace(string(b)), nil
}
