package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// ConnectionState describes the lifecycle state of the event socket.
type ConnectionState int

// Connection states, in lifecycle order.
const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateClosing
	StateClosed
	StateUnknown
)

// String returns the state name used in logs and API responses.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// UpdateHandler receives decoded emote-set deltas. At most one handler
// is registered at a time; registering a new one replaces the previous.
type UpdateHandler func(delta model.EmoteDelta)

// Options configures a Client. Zero values fall back to the defaults in
// the constants package.
type Options struct {
	// URL of the EventAPI WebSocket endpoint.
	URL string
	// ReconnectBaseDelay is multiplied by the attempt number to produce
	// the delay before each reconnect attempt.
	ReconnectBaseDelay time.Duration
	// MaxReconnectAttempts caps automatic reconnects; once exhausted the
	// client stays disconnected until ResetBackoff or a fresh
	// EnsureConnection after a successful open.
	MaxReconnectAttempts int
	// IdentifierWait bounds how long the subscription bootstrap waits
	// for each session identifier before skipping that subscription.
	IdentifierWait time.Duration
	// Log is the logger used for all client activity.
	Log *logger.Logger
}

func (o *Options) applyDefaults() {
	if o.URL == "" {
		o.URL = constants.SevenTVEventsURL
	}
	if o.ReconnectBaseDelay == 0 {
		o.ReconnectBaseDelay = constants.DefaultReconnectBaseDelay
	}
	if o.MaxReconnectAttempts == 0 {
		o.MaxReconnectAttempts = constants.DefaultMaxReconnectAttempts
	}
	if o.IdentifierWait == 0 {
		o.IdentifierWait = constants.DefaultIdentifierWait
	}
}

// Client is a long-lived EventAPI client owning one WebSocket connection.
// One Client serves the whole process; all state lives in this struct so
// tests can construct and tear down instances freely.
//
// Session identifiers (Twitch channel ID, emote set ID) survive organic
// reconnects and are cleared only by Disconnect.
type Client struct {
	mu   sync.Mutex
	opts Options
	log  *logger.Logger

	conn  *websocket.Conn
	state ConnectionState

	// generation increments on every successful connect and on
	// Disconnect. Read loops, bootstraps, and reconnect timers from a
	// superseded connection check it before acting.
	generation uint64

	twitchChannelID   string
	emoteSetID        string
	currentEmoteSetID string

	// idSignal is closed and replaced whenever an identifier setter
	// runs, waking bootstrap waiters.
	idSignal chan struct{}

	hasBootstrapped   bool
	reconnecting      bool
	reconnectAttempts int

	sessionID         string
	heartbeatInterval time.Duration
	heartbeats        int64

	handler UpdateHandler
}

// New creates an event client. The client does not connect until
// EnsureConnection is called.
func New(opts Options) *Client {
	opts.applyDefaults()
	log := opts.Log
	if log == nil {
		log, _ = logger.Setup(logger.DefaultConfig())
	}
	return &Client{
		opts:     opts,
		log:      log,
		state:    StateDisconnected,
		idSignal: make(chan struct{}),
	}
}

// EnsureConnection returns the active WebSocket connection, dialing a
// new one when none exists or the previous one closed. It is the sole
// entry point consumers use to guarantee a live connection.
func (c *Client) EnsureConnection(ctx context.Context) *websocket.Conn {
	c.mu.Lock()
	if c.conn != nil && c.state != StateClosed && c.state != StateDisconnected {
		conn := c.conn
		c.mu.Unlock()
		return conn
	}
	c.mu.Unlock()
	return c.connect(ctx)
}

// connect dials the EventAPI. It is a no-op while another connect is in
// flight. Dial failures never propagate to the caller; they are routed
// into the reconnect path.
func (c *Client) connect(ctx context.Context) *websocket.Conn {
	c.mu.Lock()
	if c.state == StateConnecting {
		conn := c.conn
		c.mu.Unlock()
		return conn
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, _, err := websocket.Dial(ctx, c.opts.URL, nil)
	if err != nil {
		c.log.Error("event socket dial failed", "url", c.opts.URL, "error", err)
		c.mu.Lock()
		c.state = StateDisconnected
		c.mu.Unlock()
		c.attemptReconnect(ctx)
		return nil
	}
	conn.SetReadLimit(512 << 10) // 512 KB

	c.mu.Lock()
	c.conn = conn
	c.state = StateConnected
	c.reconnecting = false
	c.reconnectAttempts = 0
	c.generation++
	gen := c.generation
	runBootstrap := !c.hasBootstrapped
	if runBootstrap {
		c.hasBootstrapped = true
	}
	c.mu.Unlock()

	connectsTotal.Inc()
	c.log.Info("event socket connected", "url", c.opts.URL)

	go c.readLoop(ctx, gen, conn)
	if runBootstrap {
		go c.bootstrap(ctx, gen, conn)
	}
	return conn
}

func (c *Client) readLoop(ctx context.Context, gen uint64, conn *websocket.Conn) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			c.handleClose(ctx, gen, err)
			return
		}
		c.handleMessage(ctx, gen, data)
	}
}

func (c *Client) handleClose(ctx context.Context, gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation {
		// A newer connection or an explicit Disconnect superseded this one.
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.hasBootstrapped = false
	alreadyReconnecting := c.reconnecting
	c.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure {
		c.log.Info("event socket closed", "code", int(status))
		return
	}

	c.log.Warn("event socket closed abnormally", "code", int(status), "error", err)
	if !alreadyReconnecting {
		c.attemptReconnect(ctx)
	}
}

// handleMessage decodes one frame and routes it by opcode. Malformed
// frames are dropped; they never take down the read loop.
func (c *Client) handleMessage(ctx context.Context, gen uint64, data []byte) {
	if !c.isCurrent(gen) {
		return
	}

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		framesDropped.Inc()
		c.log.Error("undecodable event frame", "error", err)
		return
	}
	framesReceived.WithLabelValues(env.Op.String()).Inc()

	switch env.Op {
	case OpDispatch:
		c.handleDispatch(env.Data)

	case OpHello:
		var hello helloPayload
		if err := json.Unmarshal(env.Data, &hello); err != nil {
			framesDropped.Inc()
			c.log.Error("undecodable hello payload", "error", err)
			return
		}
		c.mu.Lock()
		c.sessionID = hello.SessionID
		c.heartbeatInterval = time.Duration(hello.HeartbeatInterval) * time.Millisecond
		c.mu.Unlock()
		c.log.Info("event session established",
			"session_id", hello.SessionID,
			"heartbeat_interval", c.heartbeatInterval,
			"subscription_limit", hello.SubscriptionLimit,
		)

	case OpHeartbeat:
		var hb heartbeatPayload
		_ = json.Unmarshal(env.Data, &hb)
		c.mu.Lock()
		c.heartbeats++
		n := c.heartbeats
		c.mu.Unlock()
		c.log.Debug("event heartbeat", "server_count", hb.Count, "received", n)

	case OpReconnect, OpEndOfStream:
		var cp closePayload
		_ = json.Unmarshal(env.Data, &cp)
		c.log.Info("server requested reconnect",
			"op", env.Op.String(), "code", cp.Code, "message", cp.Message)
		// The server may keep the old socket open after an op 4. Close it
		// here so the read loop runs the regular close path, which resets
		// the bootstrap flag and schedules the reconnect.
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}

	case OpAck:
		var ack ackPayload
		_ = json.Unmarshal(env.Data, &ack)
		c.log.Debug("event command acknowledged", "command", ack.Command)

	case OpError:
		var cp closePayload
		_ = json.Unmarshal(env.Data, &cp)
		c.log.Warn("subscription rejected", "code", cp.Code, "message", cp.Message)

	default:
		c.log.Debug("unhandled event opcode", "op", int(env.Op))
	}
}

func (c *Client) handleDispatch(data []byte) {
	var p dispatchPayload
	if err := json.Unmarshal(data, &p); err != nil {
		framesDropped.Inc()
		c.log.Error("undecodable dispatch payload", "error", err)
		return
	}

	switch p.Type {
	case EventTypeEmoteSetUpdate:
		c.handleEmoteSetUpdate(p.Body)
	default:
		c.log.Debug("ignoring dispatch event", "type", p.Type)
	}
}

// bootstrap performs the one-shot subscription setup after a connection
// opens. The consumer may supply identifiers asynchronously, so each is
// awaited within its own bounded window; a missing identifier skips its
// subscription without failing the connection.
func (c *Client) bootstrap(ctx context.Context, gen uint64, conn *websocket.Conn) {
	if !c.isCurrent(gen) || !c.IsConnected() {
		c.log.Warn("subscription bootstrap aborted: socket not open")
		return
	}

	if channelID := c.waitForIdentifier(ctx, gen, c.TwitchChannelID); channelID != "" {
		c.sendSubscribe(ctx, gen, conn, EventTypeEntitlementCreate, entitlementCondition(channelID))
	} else {
		c.log.Warn("twitch channel id not supplied in time, skipping entitlement subscription",
			"wait", c.opts.IdentifierWait)
	}

	if setID := c.waitForIdentifier(ctx, gen, c.EmoteSetID); setID != "" {
		c.sendSubscribe(ctx, gen, conn, EventTypeEmoteSetUpdate, objectCondition(setID))
	} else {
		c.log.Warn("emote set id not supplied in time, skipping emote set subscription",
			"wait", c.opts.IdentifierWait)
	}
}

// waitForIdentifier blocks until get returns a non-empty value, the wait
// window elapses, the connection is superseded, or the context ends.
func (c *Client) waitForIdentifier(ctx context.Context, gen uint64, get func() string) string {
	timeout := time.NewTimer(c.opts.IdentifierWait)
	defer timeout.Stop()

	for {
		if v := get(); v != "" {
			return v
		}
		if !c.isCurrent(gen) {
			return ""
		}

		c.mu.Lock()
		signal := c.idSignal
		c.mu.Unlock()

		select {
		case <-signal:
		case <-timeout.C:
			return ""
		case <-ctx.Done():
			return ""
		}
	}
}

// SubscribeChannel switches the active emote-set subscription. A
// previously active set is unsubscribed first. When disconnected the new
// set is only recorded; the next bootstrap or an explicit resubscribe
// picks it up.
func (c *Client) SubscribeChannel(ctx context.Context, emoteSetID string) {
	c.mu.Lock()
	prev := c.currentEmoteSetID
	conn := c.conn
	connected := c.state == StateConnected
	channelID := c.twitchChannelID
	gen := c.generation
	c.currentEmoteSetID = emoteSetID
	c.mu.Unlock()

	if prev != "" && prev != emoteSetID && connected && conn != nil {
		c.sendUnsubscribe(ctx, gen, conn, EventTypeEmoteSetUpdate, objectCondition(prev))
	}

	if emoteSetID == "" {
		return
	}
	if !connected || conn == nil {
		c.log.Debug("not connected; emote set recorded for later subscription",
			"emote_set_id", emoteSetID)
		return
	}

	c.sendSubscribe(ctx, gen, conn, EventTypeEmoteSetUpdate, objectCondition(emoteSetID))
	c.sendSubscribe(ctx, gen, conn, EventTypeEmoteUpdate, objectCondition(emoteSetID))
	if channelID != "" {
		c.sendSubscribe(ctx, gen, conn, EventTypeEntitlementCreate, entitlementCondition(channelID))
	}
}

// UnsubscribeChannel drops the active emote-set subscription. The
// recorded set ID is cleared regardless of connection state.
func (c *Client) UnsubscribeChannel(ctx context.Context) {
	c.mu.Lock()
	cur := c.currentEmoteSetID
	conn := c.conn
	connected := c.state == StateConnected
	gen := c.generation
	c.currentEmoteSetID = ""
	c.mu.Unlock()

	if cur != "" && connected && conn != nil {
		c.sendUnsubscribe(ctx, gen, conn, EventTypeEmoteSetUpdate, objectCondition(cur))
	}
}

// SetTwitchChannelID records the Twitch channel used as the entitlement
// subscription filter and wakes any bootstrap waiting on it.
func (c *Client) SetTwitchChannelID(id string) {
	c.mu.Lock()
	c.twitchChannelID = id
	c.signalIdentifiersLocked()
	c.mu.Unlock()
}

// SetEmoteSetID records the emote set used as the emote-set subscription
// filter and wakes any bootstrap waiting on it.
func (c *Client) SetEmoteSetID(id string) {
	c.mu.Lock()
	c.emoteSetID = id
	c.signalIdentifiersLocked()
	c.mu.Unlock()
}

// SetUpdateHandler replaces the registered emote-delta handler. Passing
// nil unregisters it.
func (c *Client) SetUpdateHandler(fn UpdateHandler) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// TwitchChannelID returns the recorded Twitch channel ID.
func (c *Client) TwitchChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.twitchChannelID
}

// EmoteSetID returns the recorded emote set ID.
func (c *Client) EmoteSetID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emoteSetID
}

// CurrentEmoteSetID returns the emote set the client actively subscribed
// to via SubscribeChannel.
func (c *Client) CurrentEmoteSetID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentEmoteSetID
}

// SessionID returns the session ID from the most recent hello frame.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the connection lifecycle state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the socket is open.
func (c *Client) IsConnected() bool {
	return c.State() == StateConnected
}

// attemptReconnect schedules a reconnect with linear backoff. It is a
// no-op while a reconnect is already pending, and gives up permanently
// once the attempt cap is reached (until a successful open or
// ResetBackoff resets the counter).
func (c *Client) attemptReconnect(ctx context.Context) {
	c.mu.Lock()
	if c.reconnecting {
		c.mu.Unlock()
		return
	}
	if c.reconnectAttempts >= c.opts.MaxReconnectAttempts {
		attempts := c.reconnectAttempts
		c.mu.Unlock()
		c.log.Error("reconnect attempts exhausted; staying disconnected", "attempts", attempts)
		return
	}
	c.reconnecting = true
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	gen := c.generation
	c.mu.Unlock()

	delay := time.Duration(attempt) * c.opts.ReconnectBaseDelay
	reconnectsScheduled.Inc()
	c.log.Info("scheduling reconnect", "attempt", attempt, "delay", delay)

	time.AfterFunc(delay, func() {
		c.mu.Lock()
		stale := gen != c.generation
		c.reconnecting = false
		c.mu.Unlock()

		if stale || ctx.Err() != nil {
			return
		}
		c.connect(ctx)
	})
}

// ResetBackoff clears the reconnect attempt counter so a later
// EnsureConnection starts from attempt zero after exhaustion.
func (c *Client) ResetBackoff() {
	c.mu.Lock()
	c.reconnectAttempts = 0
	c.reconnecting = false
	c.mu.Unlock()
}

// Disconnect closes the socket with a normal-closure code and resets all
// session state: identifiers, bootstrap flag, reconnect counters, and
// the registered handler. This is the only path that clears identifiers;
// organic reconnects preserve channel context.
func (c *Client) Disconnect() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.state = StateDisconnected
	c.generation++ // invalidate in-flight read loops, bootstraps, and timers
	c.reconnecting = false
	c.reconnectAttempts = 0
	c.hasBootstrapped = false
	c.twitchChannelID = ""
	c.emoteSetID = ""
	c.currentEmoteSetID = ""
	c.handler = nil
	c.signalIdentifiersLocked()
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client disconnect")
	}
	c.log.Info("event client disconnected")
}

func (c *Client) isCurrent(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return gen == c.generation
}

// signalIdentifiersLocked wakes all identifier waiters. Callers must
// hold c.mu.
func (c *Client) signalIdentifiersLocked() {
	close(c.idSignal)
	c.idSignal = make(chan struct{})
}

func (c *Client) sendSubscribe(ctx context.Context, gen uint64, conn *websocket.Conn, eventType string, condition map[string]string) {
	if !c.isCurrent(gen) {
		return
	}
	c.log.Debug("subscribing", "type", eventType, "condition", condition)
	if err := c.sendOp(ctx, conn, OpSubscribe, subscribePayload{Type: eventType, Condition: condition}); err != nil {
		c.log.Warn("subscribe send failed", "type", eventType, "error", err)
	}
}

func (c *Client) sendUnsubscribe(ctx context.Context, gen uint64, conn *websocket.Conn, eventType string, condition map[string]string) {
	if !c.isCurrent(gen) {
		return
	}
	c.log.Debug("unsubscribing", "type", eventType, "condition", condition)
	if err := c.sendOp(ctx, conn, OpUnsubscribe, subscribePayload{Type: eventType, Condition: condition}); err != nil {
		c.log.Warn("unsubscribe send failed", "type", eventType, "error", err)
	}
}

func (c *Client) sendOp(ctx context.Context, conn *websocket.Conn, op Opcode, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope{Op: op, Data: raw})
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, frame)
}
