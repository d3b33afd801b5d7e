// Package seventv provides a small REST client for the 7TV API, used to
// resolve a Twitch channel's active emote set and to seed the live emote
// store with the set's current contents.
package seventv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// ErrNotFound is returned when a channel has no 7TV presence or an
// emote set does not exist.
var ErrNotFound = errors.New("seventv: not found")

// Client is the 7TV REST API client with connection pooling and retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logger.Logger
	maxRetries int
}

// NewClient creates a 7TV client. baseURL may be empty to use the
// production API.
func NewClient(baseURL string, log *logger.Logger) *Client {
	if baseURL == "" {
		baseURL = constants.SevenTVAPIURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: constants.DefaultHTTPTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 4,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		log:        log,
		maxRetries: constants.DefaultMaxRetries,
	}
}

type userConnection struct {
	EmoteSet *struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"emote_set"`
}

type emoteSetResponse struct {
	ID     string               `json:"id"`
	Name   string               `json:"name"`
	Emotes []model.EmotePayload `json:"emotes"`
}

// EmoteSetForTwitchChannel resolves the ID of the emote set currently
// assigned to a Twitch channel.
func (c *Client) EmoteSetForTwitchChannel(ctx context.Context, channelID string) (string, error) {
	var conn userConnection
	url := fmt.Sprintf("%s/users/twitch/%s", c.baseURL, channelID)
	if err := c.getJSON(ctx, url, &conn); err != nil {
		return "", fmt.Errorf("resolving emote set for channel %s: %w", channelID, err)
	}
	if conn.EmoteSet == nil || conn.EmoteSet.ID == "" {
		return "", fmt.Errorf("channel %s: %w", channelID, ErrNotFound)
	}
	return conn.EmoteSet.ID, nil
}

// EmoteSet fetches the full contents of an emote set and maps each
// active emote to a record, resolving the best available CDN file.
func (c *Client) EmoteSet(ctx context.Context, setID string) ([]model.EmoteRecord, error) {
	var set emoteSetResponse
	url := fmt.Sprintf("%s/emote-sets/%s", c.baseURL, setID)
	if err := c.getJSON(ctx, url, &set); err != nil {
		return nil, fmt.Errorf("fetching emote set %s: %w", setID, err)
	}

	records := make([]model.EmoteRecord, 0, len(set.Emotes))
	for _, e := range set.Emotes {
		records = append(records, model.RecordFromPayload(e, ""))
	}
	return records, nil
}

// getJSON performs a GET request with retries on transport errors and
// 5xx responses.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			c.log.Debug("retrying 7TV request", "url", url, "attempt", attempt)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("User-Agent", constants.DefaultUserAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return ErrNotFound
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		case resp.StatusCode >= 400:
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
