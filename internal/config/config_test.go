package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadChannelConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "SomeStreamer.yaml", `
chat:
  enabled: true
history:
  enabled: true
`)

	cfg, err := LoadChannelConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "somestreamer", cfg.Channel)
	assert.True(t, cfg.IsEnabled())
	assert.True(t, cfg.Chat.Enabled)

	assert.Equal(t, "wss://events.7tv.io/v3", cfg.Events.URL)
	assert.Equal(t, 2*time.Second, cfg.Events.ReconnectBaseDelay)
	assert.Equal(t, 5, cfg.Events.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Events.IdentifierWait)
	assert.Equal(t, "somestreamer-emotes.db", cfg.History.Path)
}

func TestLoadChannelConfigOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "teststreamer.yaml", `
enabled: false
channel_id: "12345"
emote_set_id: "set-abc"
events:
  url: "ws://localhost:9999/v3"
  reconnect_base_delay: 500ms
  max_reconnect_attempts: 2
history:
  enabled: true
  path: custom.db
`)

	cfg, err := LoadChannelConfig(path)
	require.NoError(t, err)

	assert.False(t, cfg.IsEnabled())
	assert.Equal(t, "12345", cfg.ChannelID)
	assert.Equal(t, "set-abc", cfg.EmoteSetID)
	assert.Equal(t, "ws://localhost:9999/v3", cfg.Events.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Events.ReconnectBaseDelay)
	assert.Equal(t, 2, cfg.Events.MaxReconnectAttempts)
	assert.Equal(t, "custom.db", cfg.History.Path)
}

func TestEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "envchan.yaml", `
notifications:
  discord:
    enabled: true
  webhook:
    enabled: true
`)

	t.Setenv("DISCORD_WEBHOOK_ENVCHAN", "https://discord.example/hook")
	t.Setenv("WEBHOOK_URL_ENVCHAN", "https://hooks.example/emotes")

	cfg, err := LoadChannelConfig(path)
	require.NoError(t, err)

	require.NotNil(t, cfg.Notifications.Discord)
	assert.Equal(t, "https://discord.example/hook", cfg.Notifications.Discord.WebhookURL)
	require.NotNil(t, cfg.Notifications.Webhook)
	assert.Equal(t, "https://hooks.example/emotes", cfg.Notifications.Webhook.Endpoint)

	require.NoError(t, Validate(cfg))
}

func TestLoadAllChannelConfigs(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "alpha.yaml", "chat:\n  enabled: true\n")
	writeConfig(t, dir, "beta.yml", "chat:\n  enabled: false\n")
	writeConfig(t, dir, "ignored.yaml.example", "chat:\n  enabled: true\n")
	writeConfig(t, dir, "notes.txt", "not a config")

	configs, err := LoadAllChannelConfigs(dir)
	require.NoError(t, err)
	require.Len(t, configs, 2)

	names := []string{configs[0].Channel, configs[1].Channel}
	assert.ElementsMatch(t, []string{"alpha", "beta"}, names)
}

func TestLoadAllChannelConfigsEmptyDir(t *testing.T) {
	_, err := LoadAllChannelConfigs(t.TempDir())
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &ChannelConfig{Channel: "good"}
	assert.NoError(t, Validate(cfg))

	cfg = &ChannelConfig{}
	assert.Error(t, Validate(cfg))

	cfg = &ChannelConfig{Channel: "#hashchan"}
	assert.Error(t, Validate(cfg))

	cfg = &ChannelConfig{
		Channel: "good",
		Notifications: NotificationsConfig{
			Discord: &DiscordConfig{Enabled: true},
		},
	}
	assert.Error(t, Validate(cfg))

	cfg = &ChannelConfig{
		Channel: "good",
		Notifications: NotificationsConfig{
			Webhook: &WebhookConfig{Enabled: true},
		},
	}
	assert.Error(t, Validate(cfg))
}
