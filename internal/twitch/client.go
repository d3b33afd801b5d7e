// Package twitch provides a minimal unauthenticated Twitch GQL client
// used to resolve a channel login to its numeric channel ID via the
// persisted GetIDFromLogin operation.
package twitch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
)

// ErrUserNotFound is returned when the login does not resolve to a user.
var ErrUserNotFound = errors.New("twitch: user not found")

// Client is the Twitch GQL HTTP client.
type Client struct {
	gqlURL     string
	httpClient *http.Client
	log        *logger.Logger
	maxRetries int
}

// NewClient creates a Twitch GQL client. gqlURL may be empty to use the
// production endpoint.
func NewClient(gqlURL string, log *logger.Logger) *Client {
	if gqlURL == "" {
		gqlURL = constants.GQLURL
	}
	return &Client{
		gqlURL: gqlURL,
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

type gqlRequest struct {
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
	Extensions    *gqlExtensions `json:"extensions,omitempty"`
}

type gqlExtensions struct {
	PersistedQuery *persistedQuery `json:"persistedQuery"`
}

type persistedQuery struct {
	Version    int    `json:"version"`
	SHA256Hash string `json:"sha256Hash"`
}

type getIDFromLoginResponse struct {
	Data struct {
		User *struct {
			ID string `json:"id"`
		} `json:"user"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// ChannelIDForLogin resolves a Twitch login name to its channel ID.
func (c *Client) ChannelIDForLogin(ctx context.Context, login string) (string, error) {
	req := gqlRequest{
		OperationName: "GetIDFromLogin",
		Variables:     map[string]any{"login": login},
		Extensions: &gqlExtensions{
			PersistedQuery: &persistedQuery{
				Version:    1,
				SHA256Hash: constants.GetIDFromLoginHash,
			},
		},
	}

	var resp getIDFromLoginResponse
	if err := c.post(ctx, req, &resp); err != nil {
		return "", fmt.Errorf("resolving channel id for %s: %w", login, err)
	}
	if len(resp.Errors) > 0 {
		return "", fmt.Errorf("resolving channel id for %s: gql error: %s", login, resp.Errors[0].Message)
	}
	if resp.Data.User == nil || resp.Data.User.ID == "" {
		return "", fmt.Errorf("login %s: %w", login, ErrUserNotFound)
	}
	return resp.Data.User.ID, nil
}

func (c *Client) post(ctx context.Context, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
			c.log.Debug("retrying GQL request", "attempt", attempt)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.gqlURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Client-ID", constants.ClientIDBrowser)
		req.Header.Set("User-Agent", constants.DefaultUserAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("reading response: %w", err)
			continue
		}

		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("server error %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
		return nil
	}

	return fmt.Errorf("request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
