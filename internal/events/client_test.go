package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// fakeEventServer accepts EventAPI WebSocket connections and records
// every frame the client sends.
type fakeEventServer struct {
	srv     *httptest.Server
	accepts atomic.Int32
	conns   chan *websocket.Conn
	frames  chan envelope
}

func newFakeEventServer(t *testing.T) *fakeEventServer {
	s := &fakeEventServer{
		conns:  make(chan *websocket.Conn, 8),
		frames: make(chan envelope, 64),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		s.accepts.Add(1)
		s.conns <- conn
		for {
			_, data, err := conn.Read(r.Context())
			if err != nil {
				return
			}
			var env envelope
			if json.Unmarshal(data, &env) == nil {
				s.frames <- env
			}
		}
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *fakeEventServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *fakeEventServer) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client connection")
		return nil
	}
}

func (s *fakeEventServer) nextFrame(t *testing.T) envelope {
	t.Helper()
	select {
	case env := <-s.frames:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for client frame")
		return envelope{}
	}
}

func (s *fakeEventServer) send(t *testing.T, conn *websocket.Conn, op Opcode, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	frame, err := json.Marshal(envelope{Op: op, Data: raw})
	require.NoError(t, err)
	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, frame))
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.Setup(logger.Config{Level: slog.LevelError})
	require.NoError(t, err)
	return log
}

func newTestClient(t *testing.T, s *fakeEventServer, opts Options) *Client {
	t.Helper()
	opts.URL = s.url()
	if opts.Log == nil {
		opts.Log = testLogger(t)
	}
	c := New(opts)
	t.Cleanup(c.Disconnect)
	return c
}

func decodeSubscribe(t *testing.T, env envelope) subscribePayload {
	t.Helper()
	var p subscribePayload
	require.NoError(t, json.Unmarshal(env.Data, &p))
	return p
}

func TestEnsureConnectionReusesOpenSocket(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{})
	ctx := context.Background()

	conn1 := c.EnsureConnection(ctx)
	require.NotNil(t, conn1)
	assert.True(t, c.IsConnected())

	conn2 := c.EnsureConnection(ctx)
	assert.Same(t, conn1, conn2)
	require.Eventually(t, func() bool {
		return s.accepts.Load() == 1
	}, time.Second, 10*time.Millisecond)
}

func TestBootstrapSubscribesChannelThenEmoteSet(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 2 * time.Second})
	ctx := context.Background()

	require.NotNil(t, c.EnsureConnection(ctx))
	s.nextConn(t)

	// Identifiers arrive after the connection is already open; the
	// bootstrap must pick them up via its wait windows.
	c.SetTwitchChannelID("12345")
	c.SetEmoteSetID("set-abc")

	first := s.nextFrame(t)
	require.Equal(t, OpSubscribe, first.Op)
	sub := decodeSubscribe(t, first)
	assert.Equal(t, EventTypeEntitlementCreate, sub.Type)
	assert.Equal(t, "12345", sub.Condition["id"])
	assert.Equal(t, "TWITCH", sub.Condition["platform"])

	second := s.nextFrame(t)
	require.Equal(t, OpSubscribe, second.Op)
	sub = decodeSubscribe(t, second)
	assert.Equal(t, EventTypeEmoteSetUpdate, sub.Type)
	assert.Equal(t, "set-abc", sub.Condition["object_id"])
}

func TestBootstrapSkipsMissingChannelID(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 50 * time.Millisecond})
	ctx := context.Background()

	// Only the emote set is known; the channel-id window must expire
	// without blocking the emote-set subscription.
	c.SetEmoteSetID("set-abc")
	require.NotNil(t, c.EnsureConnection(ctx))

	frame := s.nextFrame(t)
	require.Equal(t, OpSubscribe, frame.Op)
	sub := decodeSubscribe(t, frame)
	assert.Equal(t, EventTypeEmoteSetUpdate, sub.Type)

	select {
	case extra := <-s.frames:
		t.Fatalf("unexpected extra frame: op=%v", extra.Op)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSubscribeChannelUnsubscribesPreviousSet(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 2 * time.Second})
	ctx := context.Background()

	c.SetTwitchChannelID("12345")
	c.SetEmoteSetID("set-a")
	require.NotNil(t, c.EnsureConnection(ctx))
	s.nextConn(t)

	// Drain the two bootstrap subscriptions.
	s.nextFrame(t)
	s.nextFrame(t)

	c.SubscribeChannel(ctx, "set-a")
	for i := 0; i < 3; i++ {
		frame := s.nextFrame(t)
		assert.Equal(t, OpSubscribe, frame.Op)
	}
	assert.Equal(t, "set-a", c.CurrentEmoteSetID())

	c.SubscribeChannel(ctx, "set-b")

	frame := s.nextFrame(t)
	require.Equal(t, OpUnsubscribe, frame.Op)
	sub := decodeSubscribe(t, frame)
	assert.Equal(t, EventTypeEmoteSetUpdate, sub.Type)
	assert.Equal(t, "set-a", sub.Condition["object_id"])

	frame = s.nextFrame(t)
	require.Equal(t, OpSubscribe, frame.Op)
	sub = decodeSubscribe(t, frame)
	assert.Equal(t, EventTypeEmoteSetUpdate, sub.Type)
	assert.Equal(t, "set-b", sub.Condition["object_id"])
	assert.Equal(t, "set-b", c.CurrentEmoteSetID())
}

func TestUnsubscribeChannelClearsCurrentSet(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 50 * time.Millisecond})
	ctx := context.Background()

	require.NotNil(t, c.EnsureConnection(ctx))
	s.nextConn(t)

	c.SubscribeChannel(ctx, "set-a")
	frame := s.nextFrame(t)
	assert.Equal(t, OpSubscribe, frame.Op)
	frame = s.nextFrame(t)
	assert.Equal(t, OpSubscribe, frame.Op)

	c.UnsubscribeChannel(ctx)
	frame = s.nextFrame(t)
	require.Equal(t, OpUnsubscribe, frame.Op)
	sub := decodeSubscribe(t, frame)
	assert.Equal(t, "set-a", sub.Condition["object_id"])
	assert.Empty(t, c.CurrentEmoteSetID())
}

func TestAbnormalCloseTriggersReconnect(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{
		ReconnectBaseDelay: 10 * time.Millisecond,
		IdentifierWait:     50 * time.Millisecond,
	})
	ctx := context.Background()

	require.NotNil(t, c.EnsureConnection(ctx))
	conn := s.nextConn(t)

	conn.CloseNow()

	require.Eventually(t, func() bool {
		return s.accepts.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
}

func TestServerRequestedReconnectResubscribes(t *testing.T) {
	for _, op := range []Opcode{OpReconnect, OpEndOfStream} {
		t.Run(op.String(), func(t *testing.T) {
			s := newFakeEventServer(t)
			c := newTestClient(t, s, Options{
				ReconnectBaseDelay: 10 * time.Millisecond,
				IdentifierWait:     2 * time.Second,
			})
			ctx := context.Background()

			c.SetTwitchChannelID("12345")
			c.SetEmoteSetID("set-a")
			require.NotNil(t, c.EnsureConnection(ctx))
			conn := s.nextConn(t)

			// Drain the first bootstrap.
			s.nextFrame(t)
			s.nextFrame(t)

			// The server requests a reconnect but keeps the old socket open.
			s.send(t, conn, op, closePayload{Code: 4012, Message: "restarting"})

			require.Eventually(t, func() bool {
				return s.accepts.Load() >= 2
			}, 2*time.Second, 10*time.Millisecond)
			s.nextConn(t)

			// The replacement connection must run the bootstrap again.
			first := s.nextFrame(t)
			require.Equal(t, OpSubscribe, first.Op)
			sub := decodeSubscribe(t, first)
			assert.Equal(t, EventTypeEntitlementCreate, sub.Type)
			assert.Equal(t, "12345", sub.Condition["id"])

			second := s.nextFrame(t)
			require.Equal(t, OpSubscribe, second.Op)
			sub = decodeSubscribe(t, second)
			assert.Equal(t, EventTypeEmoteSetUpdate, sub.Type)
			assert.Equal(t, "set-a", sub.Condition["object_id"])

			require.Eventually(t, c.IsConnected, 2*time.Second, 10*time.Millisecond)
		})
	}
}

func TestNormalCloseDoesNotReconnect(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{
		ReconnectBaseDelay: 10 * time.Millisecond,
		IdentifierWait:     50 * time.Millisecond,
	})
	ctx := context.Background()

	require.NotNil(t, c.EnsureConnection(ctx))
	conn := s.nextConn(t)

	conn.Close(websocket.StatusNormalClosure, "done")

	require.Eventually(t, func() bool {
		return c.State() == StateClosed
	}, 2*time.Second, 10*time.Millisecond)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), s.accepts.Load())
	assert.Equal(t, StateClosed, c.State())
}

func TestReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	// Plain HTTP server that refuses the WebSocket upgrade, so every
	// dial fails.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := New(Options{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectBaseDelay:   5 * time.Millisecond,
		MaxReconnectAttempts: 3,
		IdentifierWait:       50 * time.Millisecond,
		Log:                  testLogger(t),
	})
	t.Cleanup(c.Disconnect)

	assert.Nil(t, c.EnsureConnection(context.Background()))

	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.reconnectAttempts == 3 && !c.reconnecting
	}, 2*time.Second, 10*time.Millisecond)

	// No further attempts are scheduled once the cap is hit.
	time.Sleep(100 * time.Millisecond)
	c.mu.Lock()
	attempts := c.reconnectAttempts
	reconnecting := c.reconnecting
	c.mu.Unlock()
	assert.Equal(t, 3, attempts)
	assert.False(t, reconnecting)
	assert.Equal(t, StateDisconnected, c.State())

	c.ResetBackoff()
	c.mu.Lock()
	attempts = c.reconnectAttempts
	c.mu.Unlock()
	assert.Zero(t, attempts)
}

func TestReconnectBackoffGrowsLinearly(t *testing.T) {
	var mu sync.Mutex
	var dials []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		dials = append(dials, time.Now())
		mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	base := 40 * time.Millisecond
	c := New(Options{
		URL:                  "ws" + strings.TrimPrefix(srv.URL, "http"),
		ReconnectBaseDelay:   base,
		MaxReconnectAttempts: 3,
		IdentifierWait:       50 * time.Millisecond,
		Log:                  testLogger(t),
	})
	t.Cleanup(c.Disconnect)

	assert.Nil(t, c.EnsureConnection(context.Background()))

	// Initial dial plus three backed-off attempts.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(dials) == 4
	}, 2*time.Second, 10*time.Millisecond)

	// The delay before attempt N is N times the base delay; timers never
	// fire early, so each inter-dial gap has that as a lower bound.
	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(dials); i++ {
		gap := dials[i].Sub(dials[i-1])
		want := time.Duration(i) * base
		assert.GreaterOrEqual(t, gap, want, "attempt %d fired before its delay window", i)
	}
}

func TestDisconnectClearsSessionState(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 2 * time.Second})
	ctx := context.Background()

	c.SetTwitchChannelID("12345")
	c.SetEmoteSetID("set-a")
	c.SetUpdateHandler(func(model.EmoteDelta) {})
	require.NotNil(t, c.EnsureConnection(ctx))

	c.Disconnect()

	assert.Equal(t, StateDisconnected, c.State())
	assert.Empty(t, c.TwitchChannelID())
	assert.Empty(t, c.EmoteSetID())
	assert.Empty(t, c.CurrentEmoteSetID())

	c.mu.Lock()
	assert.Nil(t, c.handler)
	assert.False(t, c.hasBootstrapped)
	assert.Zero(t, c.reconnectAttempts)
	c.mu.Unlock()
}

func TestHelloAndDispatchFlow(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 2 * time.Second})
	ctx := context.Background()

	deltaCh := make(chan model.EmoteDelta, 1)
	c.SetUpdateHandler(func(d model.EmoteDelta) { deltaCh <- d })
	c.SetTwitchChannelID("42")
	c.SetEmoteSetID("set-1")

	require.NotNil(t, c.EnsureConnection(ctx))
	conn := s.nextConn(t)

	s.send(t, conn, OpHello, helloPayload{
		HeartbeatInterval: 30000,
		SessionID:         "sess-1",
		SubscriptionLimit: 500,
	})

	// Bootstrap subscriptions for the channel and the emote set.
	s.nextFrame(t)
	s.nextFrame(t)

	emote := model.EmotePayload{
		ID:   "E1",
		Name: "Kappa",
		Data: &model.EmoteData{
			ID:   "E1",
			Name: "Kappa",
			Host: model.Host{
				URL:   "//cdn.7tv.app/emote/E1",
				Files: []model.File{{Name: "1x.avif", Width: 32, Height: 32}},
			},
		},
	}
	raw, err := json.Marshal(emote)
	require.NoError(t, err)

	s.send(t, conn, OpDispatch, dispatchPayload{
		Type: EventTypeEmoteSetUpdate,
		Body: model.ChangeMap{
			ID:     "set-1",
			Actor:  &model.Actor{Username: "moderator"},
			Pushed: model.ChangeFieldSet{{Key: "emotes", Value: raw}},
		},
	})

	var delta model.EmoteDelta
	select {
	case delta = <-deltaCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emote delta")
	}

	require.Len(t, delta.Added, 1)
	assert.Empty(t, delta.Removed)
	assert.Equal(t, "42", delta.ChannelID)
	assert.Equal(t, "Kappa", delta.Added[0].Name)
	assert.Equal(t, "https://cdn.7tv.app/emote/E1/1x.avif", delta.Added[0].URL)
	assert.Equal(t, "moderator", delta.Added[0].Actor)

	assert.Equal(t, "sess-1", c.SessionID())
}

func TestMalformedFrameDoesNotKillReadLoop(t *testing.T) {
	s := newFakeEventServer(t)
	c := newTestClient(t, s, Options{IdentifierWait: 50 * time.Millisecond})
	ctx := context.Background()

	require.NotNil(t, c.EnsureConnection(ctx))
	conn := s.nextConn(t)

	require.NoError(t, conn.Write(context.Background(), websocket.MessageText, []byte("not json")))

	s.send(t, conn, OpHello, helloPayload{SessionID: "sess-2"})
	require.Eventually(t, func() bool {
		return c.SessionID() == "sess-2"
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, c.IsConnected())
}
