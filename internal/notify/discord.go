package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Discord sends notifications via a Discord webhook.
type Discord struct {
	baseNotifier
	webhookURL string
	httpClient *http.Client
}

// Send posts an embed message to the configured Discord webhook. The
// channel, emote, and actor are rendered as embed fields; when an emote
// CDN URL is present it becomes the embed thumbnail.
func (d *Discord) Send(ctx context.Context, n Notification) error {
	embed := map[string]any{
		"title":       n.Title,
		"description": n.Message,
		"color":       2970366, // 7TV blue
	}

	var embedFields []map[string]any
	addField := func(name, value string) {
		if value == "" {
			return
		}
		embedFields = append(embedFields, map[string]any{
			"name": name, "value": value, "inline": true,
		})
	}
	addField("Channel", n.Channel)
	addField("Emote", n.Emote)
	addField("Actor", n.Actor)
	if len(embedFields) > 0 {
		embed["fields"] = embedFields
	}
	if n.EmoteURL != "" {
		embed["thumbnail"] = map[string]any{"url": n.EmoteURL}
	}

	payload := map[string]any{
		"username": "emotewatch",
		"embeds":   []map[string]any{embed},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("discord: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("discord: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("discord: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("discord: unexpected status %d", resp.StatusCode)
	}

	return nil
}
