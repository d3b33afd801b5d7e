package chat

import (
	"strings"

	"github.com/gempir/go-twitch-irc/v4"

	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// EmoteLookup resolves an emote name against the live 7TV emote store.
type EmoteLookup func(name string) (model.EmoteRecord, bool)

// Handler processes IRC events for a single channel.
type Handler struct {
	channel string
	lookup  EmoteLookup
	log     *logger.Logger
}

// NewHandler creates an IRC event handler.
func NewHandler(channel string, lookup EmoteLookup, log *logger.Logger) *Handler {
	return &Handler{
		channel: strings.ToLower(channel),
		lookup:  lookup,
		log:     log,
	}
}

// OnConnect logs the successful IRC connection.
func (h *Handler) OnConnect() {
	h.log.Info("connected to IRC", "channel", h.channel)
}

// OnReconnect logs a server-initiated IRC reconnect.
func (h *Handler) OnReconnect() {
	h.log.Warn("IRC server requested reconnect", "channel", h.channel)
}

// OnPrivateMessage annotates a chat message with any 7TV emotes it uses
// and logs it at debug level.
func (h *Handler) OnPrivateMessage(msg twitch.PrivateMessage) {
	emotes := h.findEmotes(msg.Message)
	if len(emotes) == 0 {
		h.log.Debug("chat", "user", msg.User.DisplayName, "message", msg.Message)
		return
	}

	names := make([]string, 0, len(emotes))
	for _, e := range emotes {
		names = append(names, e.Name)
	}
	h.log.Debug("chat",
		"user", msg.User.DisplayName,
		"message", msg.Message,
		"seventv_emotes", strings.Join(names, ","),
	)
}

// findEmotes returns the store records for each distinct 7TV emote used
// in the message text. Matching is on whitespace-separated words, the
// same way Twitch chat renders third-party emotes.
func (h *Handler) findEmotes(text string) []model.EmoteRecord {
	if h.lookup == nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []model.EmoteRecord
	for _, word := range strings.Fields(text) {
		if seen[word] {
			continue
		}
		seen[word] = true
		if rec, ok := h.lookup(word); ok {
			out = append(out, rec)
		}
	}
	return out
}
