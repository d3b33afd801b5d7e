package config

import "time"

// ChannelConfig is the per-channel configuration. The channel login is
// derived from the config filename.
type ChannelConfig struct {
	// Channel is the Twitch login of the watched channel.
	Channel string `yaml:"-"`
	// Enabled toggles the whole channel; nil means enabled.
	Enabled *bool `yaml:"enabled,omitempty"`
	// ChannelID optionally pins the Twitch channel ID, skipping the GQL lookup.
	ChannelID string `yaml:"channel_id,omitempty"`
	// EmoteSetID optionally pins the 7TV emote set, skipping the REST lookup.
	EmoteSetID string `yaml:"emote_set_id,omitempty"`

	Chat          ChatConfig          `yaml:"chat"`
	History       HistoryConfig       `yaml:"history"`
	Events        EventsConfig        `yaml:"events"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// IsEnabled reports whether the channel should be watched.
func (c *ChannelConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ChatConfig controls the read-only IRC chat presence.
type ChatConfig struct {
	Enabled bool `yaml:"enabled"`
}

// HistoryConfig controls the SQLite emote-change history.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// EventsConfig tunes the 7TV event client.
type EventsConfig struct {
	URL                  string        `yaml:"url,omitempty"`
	ReconnectBaseDelay   time.Duration `yaml:"reconnect_base_delay,omitempty"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts,omitempty"`
	IdentifierWait       time.Duration `yaml:"identifier_wait,omitempty"`
}

// NotificationsConfig holds the notification provider settings.
type NotificationsConfig struct {
	Discord *DiscordConfig `yaml:"discord,omitempty"`
	Webhook *WebhookConfig `yaml:"webhook,omitempty"`
}

// DiscordConfig configures the Discord webhook notifier.
type DiscordConfig struct {
	Enabled    bool     `yaml:"enabled"`
	WebhookURL string   `yaml:"webhook_url,omitempty"`
	Events     []string `yaml:"events,omitempty"`
}

// WebhookConfig configures the generic webhook notifier.
type WebhookConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint,omitempty"`
	Method   string   `yaml:"method,omitempty"`
	Events   []string `yaml:"events,omitempty"`
}
