// Package config handles loading, parsing, and validating YAML
// configuration files for emotewatch. Each watched channel has its own
// config file; secrets may be overlaid from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/foamchat/emotewatch/internal/constants"
)

// DefaultConfigDir is the default directory for channel configuration files.
const DefaultConfigDir = "configs"

// LoadChannelConfig loads a single channel configuration from a YAML
// file, then overlays environment variables for secrets. The channel
// login is derived from the filename.
func LoadChannelConfig(path string) (*ChannelConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}

	var cfg ChannelConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	filename := filepath.Base(path)
	ext := filepath.Ext(filename)
	cfg.Channel = strings.ToLower(strings.TrimSuffix(filename, ext))

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// LoadAllChannelConfigs loads all .yaml/.yml files from the given
// directory, one ChannelConfig per file. Everything else (including
// .yaml.example) is ignored by the extension check.
func LoadAllChannelConfigs(dir string) ([]*ChannelConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading config directory %s: %w", dir, err)
	}

	var configs []*ChannelConfig
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := filepath.Ext(name)
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		cfg, err := LoadChannelConfig(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", name, err)
		}

		configs = append(configs, cfg)
	}

	if len(configs) == 0 {
		return nil, fmt.Errorf("no channel config files found in %s", dir)
	}

	return configs, nil
}

func applyDefaults(cfg *ChannelConfig) {
	if cfg.Events.URL == "" {
		cfg.Events.URL = constants.SevenTVEventsURL
	}
	if cfg.Events.ReconnectBaseDelay == 0 {
		cfg.Events.ReconnectBaseDelay = constants.DefaultReconnectBaseDelay
	}
	if cfg.Events.MaxReconnectAttempts == 0 {
		cfg.Events.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if cfg.Events.IdentifierWait == 0 {
		cfg.Events.IdentifierWait = constants.DefaultIdentifierWait
	}
	if cfg.History.Enabled && cfg.History.Path == "" {
		cfg.History.Path = cfg.Channel + "-emotes.db"
	}
}

// getEnv looks up an environment variable with a per-channel suffix.
func getEnv(key, channel string) string {
	return os.Getenv(key + "_" + strings.ToUpper(channel))
}

// applyEnvOverrides overlays environment variables for secrets.
// Every variable requires the channel suffix: KEY_<UPPERCASE_CHANNEL>.
func applyEnvOverrides(cfg *ChannelConfig) {
	ch := cfg.Channel

	if cfg.Notifications.Discord != nil {
		if v := getEnv("DISCORD_WEBHOOK", ch); v != "" {
			cfg.Notifications.Discord.WebhookURL = v
		}
	}

	if cfg.Notifications.Webhook != nil {
		if v := getEnv("WEBHOOK_URL", ch); v != "" {
			cfg.Notifications.Webhook.Endpoint = v
		}
	}
}

// Validate checks the configuration for common errors.
func Validate(cfg *ChannelConfig) error {
	if cfg.Channel == "" {
		return fmt.Errorf("channel name is required")
	}

	if strings.ContainsAny(cfg.Channel, " #@") {
		return fmt.Errorf("channel %q: name must be a bare Twitch login", cfg.Channel)
	}

	if cfg.Notifications.Discord != nil && cfg.Notifications.Discord.Enabled {
		if cfg.Notifications.Discord.WebhookURL == "" {
			return fmt.Errorf("channel %s: discord enabled but webhook_url not set (use env var DISCORD_WEBHOOK_%s)",
				cfg.Channel, strings.ToUpper(cfg.Channel))
		}
	}

	if cfg.Notifications.Webhook != nil && cfg.Notifications.Webhook.Enabled {
		if cfg.Notifications.Webhook.Endpoint == "" {
			return fmt.Errorf("channel %s: webhook enabled but endpoint not set (use env var WEBHOOK_URL_%s)",
				cfg.Channel, strings.ToUpper(cfg.Channel))
		}
	}

	return nil
}
