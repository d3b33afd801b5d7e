// Package chat maintains a read-only Twitch IRC presence for a watched
// channel and annotates incoming messages with 7TV emotes known to the
// live store. It uses the go-twitch-irc library, which handles PING/PONG
// keepalive and reconnection internally.
package chat

import (
	"context"
	"strings"
	"sync"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/foamchat/emotewatch/internal/logger"
)

// Manager wraps an anonymous IRC client for a single channel.
type Manager struct {
	mu sync.Mutex

	client  *twitch.Client
	handler *Handler

	channel string
	running bool

	log *logger.Logger
}

// NewManager creates an anonymous IRC chat Manager for a channel. lookup
// resolves emote names against the live store.
func NewManager(channel string, lookup EmoteLookup, log *logger.Logger) *Manager {
	handler := NewHandler(channel, lookup, log)
	client := twitch.NewAnonymousClient()

	m := &Manager{
		client:  client,
		handler: handler,
		channel: strings.ToLower(channel),
		log:     log,
	}

	client.OnPrivateMessage(handler.OnPrivateMessage)
	client.OnConnect(handler.OnConnect)
	client.OnReconnectMessage(func(msg twitch.ReconnectMessage) {
		handler.OnReconnect()
	})

	return m
}

// Run joins the channel and blocks until the context is cancelled or the
// connection fails fatally.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	m.running = true
	m.client.Join(m.channel)
	m.mu.Unlock()

	m.log.Info("joining IRC chat", "channel", m.channel)

	errCh := make(chan error, 1)
	go func() {
		err := m.client.Connect()
		if err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		m.Close()
		return ctx.Err()
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			m.log.Error("IRC connection error", "error", err)
			return err
		}
		return ctx.Err()
	}
}

// Close departs the channel and disconnects the IRC client.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false

	m.client.Depart(m.channel)
	if err := m.client.Disconnect(); err != nil {
		m.log.Debug("IRC disconnect", "error", err)
	}
	m.log.Info("left IRC chat", "channel", m.channel)
}
