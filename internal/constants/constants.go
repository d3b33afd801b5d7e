// Package constants defines the 7TV and Twitch endpoints, client
// identifiers, and default timeout/interval values used throughout
// emotewatch.
package constants

import "time"

const (
	// SevenTVEventsURL is the 7TV EventAPI WebSocket endpoint.
	SevenTVEventsURL = "wss://events.7tv.io/v3"
	// SevenTVAPIURL is the 7TV REST API base URL.
	SevenTVAPIURL = "https://7tv.io/v3"
	// SevenTVCDNURL is the base URL for emote image files.
	SevenTVCDNURL = "https://cdn.7tv.app/emote"
	// SevenTVEmotePageURL is the base URL for an emote's detail page.
	SevenTVEmotePageURL = "https://7tv.app/emotes"

	// GQLURL is the Twitch GraphQL API endpoint.
	GQLURL = "https://gql.twitch.tv/gql"
	// TwitchURL is the base Twitch web URL.
	TwitchURL = "https://www.twitch.tv"
)

const (
	// ClientIDBrowser is the public Twitch client ID for browser clients,
	// used for unauthenticated persisted GQL queries.
	ClientIDBrowser = "kimne78kx3ncx6brgo4mv6wki5h1ko"

	// GetIDFromLoginHash is the persisted query hash for the
	// GetIDFromLogin GQL operation.
	GetIDFromLoginHash = "94e82a7b1e3c21e186daa73ee2afc4b8f23bade1fbbff6fe8ac133f50a2f58ca"
)

// DefaultUserAgent is the user-agent string used for API requests.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const (
	// SiteLabel tags emote records produced from 7TV channel emote sets.
	SiteLabel = "7TV Channel Emote"
	// UnknownCreator is the sentinel used when an emote has no resolvable owner.
	UnknownCreator = "UNKNOWN"
)

const (
	// DefaultReconnectBaseDelay is the base delay between event-client
	// reconnect attempts. The effective delay is base × attempt number.
	DefaultReconnectBaseDelay = 2 * time.Second
	// DefaultMaxReconnectAttempts is the number of reconnect attempts
	// before the event client gives up for the process lifetime.
	DefaultMaxReconnectAttempts = 5
	// DefaultIdentifierWait is how long the subscription bootstrap waits
	// for each session identifier to be supplied before skipping that
	// subscription.
	DefaultIdentifierWait = 30 * time.Second
	// DefaultHTTPTimeout is the default timeout for REST/GQL requests.
	DefaultHTTPTimeout = 15 * time.Second
	// DefaultMaxRetries is the default number of retries for REST/GQL requests.
	DefaultMaxRetries = 3
	// StartupWorkers is the number of concurrent workers used to resolve
	// channel identifiers at startup.
	StartupWorkers = 5
	// DefaultGracefulShutdownTimeout is the timeout for graceful HTTP
	// server shutdown.
	DefaultGracefulShutdownTimeout = 5 * time.Second
)
