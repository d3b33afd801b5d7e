// Package watcher implements the per-channel orchestrator. It resolves
// the channel's Twitch ID and 7TV emote set, seeds the in-memory emote
// store, runs the live event client, and fans out emote changes to the
// history database, notifications, and chat annotation.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/foamchat/emotewatch/internal/chat"
	"github.com/foamchat/emotewatch/internal/config"
	"github.com/foamchat/emotewatch/internal/constants"
	"github.com/foamchat/emotewatch/internal/events"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
	"github.com/foamchat/emotewatch/internal/notify"
	"github.com/foamchat/emotewatch/internal/seventv"
	"github.com/foamchat/emotewatch/internal/store"
	"github.com/foamchat/emotewatch/internal/twitch"
)

// Status is a point-in-time view of a watcher, exposed by the status server.
type Status struct {
	Channel    string      `json:"channel"`
	ChannelID  string      `json:"channel_id"`
	EmoteSetID string      `json:"emote_set_id"`
	Connection string      `json:"connection"`
	Running    bool        `json:"running"`
	Store      store.Stats `json:"store"`
}

// Watcher watches a single Twitch channel's 7TV emote set.
type Watcher struct {
	cfg     *config.ChannelConfig
	log     *logger.Logger
	twitch  *twitch.Client
	seventv *seventv.Client

	running atomic.Bool

	// mu guards the collaborators Run wires up while the status server
	// may already be reading them.
	mu         sync.RWMutex
	events     *events.Client
	emotes     *store.Store
	history    *store.History
	chat       *chat.Manager
	notify     *notify.Dispatcher
	runCtx     context.Context
	channelID  string
	emoteSetID string
}

// New creates a Watcher from channel configuration.
func New(cfg *config.ChannelConfig, log *logger.Logger) *Watcher {
	return &Watcher{
		cfg:     cfg,
		log:     log,
		twitch:  twitch.NewClient(constants.GQLURL, log),
		seventv: seventv.NewClient(constants.SevenTVAPIURL, log),
	}
}

// Channel returns the channel login this watcher is configured for.
func (w *Watcher) Channel() string {
	return w.cfg.Channel
}

// IsRunning reports whether the watcher's main loop is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// ResolveIdentifiers resolves the Twitch channel ID and the 7TV emote
// set ID, preferring config overrides over network lookups. Safe to call
// before Run; intended for the concurrent startup phase.
func (w *Watcher) ResolveIdentifiers(ctx context.Context) error {
	channelID := w.cfg.ChannelID
	if channelID == "" {
		id, err := w.twitch.ChannelIDForLogin(ctx, w.cfg.Channel)
		if err != nil {
			return fmt.Errorf("resolving channel ID for %s: %w", w.cfg.Channel, err)
		}
		channelID = id
	}
	w.log.Event(ctx, model.EventChannelResolved, "Channel resolved",
		"channel", w.cfg.Channel,
		"channel_id", channelID,
	)

	emoteSetID := w.cfg.EmoteSetID
	if emoteSetID == "" {
		id, err := w.seventv.EmoteSetForTwitchChannel(ctx, channelID)
		if err != nil {
			return fmt.Errorf("resolving emote set for %s: %w", w.cfg.Channel, err)
		}
		emoteSetID = id
	}
	w.log.Event(ctx, model.EventEmoteSetResolved, "Emote set resolved",
		"channel", w.cfg.Channel,
		"emote_set_id", emoteSetID,
	)

	w.mu.Lock()
	w.channelID = channelID
	w.emoteSetID = emoteSetID
	w.mu.Unlock()

	return nil
}

// Run is the main entry point for the watcher. It performs the full
// lifecycle:
//  1. Create the notification dispatcher
//  2. Resolve identifiers (if not already resolved)
//  3. Open the history database (if enabled)
//  4. Seed the emote store from the 7TV REST API
//  5. Start the event client and subscribe to live updates
//  6. Join IRC chat (if enabled)
//  7. Block until the context is cancelled
func (w *Watcher) Run(ctx context.Context) error {
	defer w.running.Store(false)

	dispatcher := notify.NewDispatcher(w.cfg.Notifications, w.log)
	if dispatcher.HasNotifiers() {
		w.log.SetNotifyFunc(dispatcher.NotifyFunc())
	}

	w.mu.Lock()
	w.runCtx = ctx
	w.notify = dispatcher
	w.mu.Unlock()

	w.mu.RLock()
	channelID, emoteSetID := w.channelID, w.emoteSetID
	w.mu.RUnlock()

	if channelID == "" || emoteSetID == "" {
		if err := w.ResolveIdentifiers(ctx); err != nil {
			return err
		}
		w.mu.RLock()
		channelID, emoteSetID = w.channelID, w.emoteSetID
		w.mu.RUnlock()
	}

	if w.cfg.History.Enabled {
		h, err := store.OpenHistory(w.cfg.History.Path)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		w.mu.Lock()
		w.history = h
		w.mu.Unlock()
		defer func() {
			w.mu.Lock()
			w.history = nil
			w.mu.Unlock()
			h.Close()
		}()
	}

	emotes := store.New(channelID)
	records, err := w.seventv.EmoteSet(ctx, emoteSetID)
	if err != nil {
		return fmt.Errorf("seeding emote store: %w", err)
	}
	emotes.Seed(records)
	w.mu.Lock()
	w.emotes = emotes
	w.mu.Unlock()
	w.log.Info("Emote store seeded",
		"channel", w.cfg.Channel,
		"emotes", emotes.Len(),
	)

	ev := events.New(events.Options{
		URL:                  w.cfg.Events.URL,
		ReconnectBaseDelay:   w.cfg.Events.ReconnectBaseDelay,
		MaxReconnectAttempts: w.cfg.Events.MaxReconnectAttempts,
		IdentifierWait:       w.cfg.Events.IdentifierWait,
		Log:                  w.log,
	})
	ev.SetUpdateHandler(w.handleDelta)
	w.mu.Lock()
	w.events = ev
	w.mu.Unlock()
	ev.EnsureConnection(ctx)
	ev.SetTwitchChannelID(channelID)
	ev.SetEmoteSetID(emoteSetID)
	ev.SubscribeChannel(ctx, emoteSetID)

	g, ctx := errgroup.WithContext(ctx)

	if w.cfg.Chat.Enabled {
		cm := chat.NewManager(w.cfg.Channel, emotes.Lookup, w.log)
		w.mu.Lock()
		w.chat = cm
		w.mu.Unlock()
		g.Go(func() error {
			return cm.Run(ctx)
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		ev.Disconnect()
		return ctx.Err()
	})

	w.running.Store(true)
	w.log.Info("✅ Watcher started",
		"channel", w.cfg.Channel,
		"channel_id", channelID,
		"emote_set_id", emoteSetID,
	)

	return g.Wait()
}

// handleDelta applies a live emote change to the store and fans it out
// to history, notifications, and the log.
func (w *Watcher) handleDelta(delta model.EmoteDelta) {
	w.mu.RLock()
	ctx, emotes, history := w.runCtx, w.emotes, w.history
	w.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}
	if emotes == nil {
		return
	}

	added, removed := emotes.ApplyDelta(delta)

	if history != nil {
		if err := history.Record(ctx, delta); err != nil {
			w.log.Warn("Failed to record emote changes",
				"channel", w.cfg.Channel,
				"error", err,
			)
		}
	}

	for _, e := range delta.Added {
		w.log.Event(ctx, model.EventEmoteAdded, "Emote added",
			"channel", w.cfg.Channel,
			"emote", e.Name,
			"actor", e.Actor,
			"url", e.URL,
		)
	}
	for _, e := range delta.Removed {
		w.log.Event(ctx, model.EventEmoteRemoved, "Emote removed",
			"channel", w.cfg.Channel,
			"emote", e.Name,
			"actor", e.Actor,
		)
	}

	w.log.Debug("Emote delta applied",
		"channel", w.cfg.Channel,
		"added", added,
		"removed", removed,
		"total", emotes.Len(),
	)
}

// Status returns a point-in-time view of the watcher.
func (w *Watcher) Status() Status {
	w.mu.RLock()
	channelID, emoteSetID := w.channelID, w.emoteSetID
	ev, emotes := w.events, w.emotes
	w.mu.RUnlock()

	s := Status{
		Channel:    w.cfg.Channel,
		ChannelID:  channelID,
		EmoteSetID: emoteSetID,
		Connection: events.StateDisconnected.String(),
		Running:    w.running.Load(),
	}
	if ev != nil {
		s.Connection = ev.State().String()
	}
	if emotes != nil {
		s.Store = emotes.Stats()
	}
	return s
}

// Emotes returns a snapshot of the channel's current emote set.
// Returns nil before the store is seeded.
func (w *Watcher) Emotes() []model.EmoteRecord {
	w.mu.RLock()
	emotes := w.emotes
	w.mu.RUnlock()
	if emotes == nil {
		return nil
	}
	return emotes.Snapshot()
}

// RecentChanges returns the most recent emote changes from the history
// database, newest first. Returns nil if history is disabled.
func (w *Watcher) RecentChanges(ctx context.Context, limit int) ([]store.Change, error) {
	w.mu.RLock()
	history, channelID := w.history, w.channelID
	w.mu.RUnlock()
	if history == nil {
		return nil, nil
	}
	return history.Recent(ctx, channelID, limit)
}

// ResetBackoff clears the event client's reconnect attempt counter so a
// future disconnect starts a fresh backoff cycle.
func (w *Watcher) ResetBackoff() {
	w.mu.RLock()
	ev := w.events
	w.mu.RUnlock()
	if ev != nil {
		ev.ResetBackoff()
	}
}
