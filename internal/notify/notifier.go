// Package notify provides notification dispatching to webhook-style
// providers (Discord, generic webhook) based on event filtering.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/foamchat/emotewatch/internal/config"
	"github.com/foamchat/emotewatch/internal/logger"
	"github.com/foamchat/emotewatch/internal/model"
)

// defaultHTTPTimeout is the timeout for notification HTTP requests.
const defaultHTTPTimeout = 5 * time.Second

// Notification is one outbound notification with the emote-change
// context providers render into their payloads. The contextual fields
// are empty when the event carries no emote change.
type Notification struct {
	Event    model.Event
	Title    string
	Message  string
	Channel  string
	Emote    string
	Actor    string
	Action   string
	EmoteURL string
}

// Notifier is the interface that all notification providers implement.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
	Name() string
	IsEnabled() bool
	ShouldNotify(event model.Event) bool
}

// Dispatcher manages multiple notifiers and dispatches notifications to
// all enabled notifiers that match the event.
type Dispatcher struct {
	notifiers []Notifier
	log       *logger.Logger
}

// NewDispatcher creates a Dispatcher from the notification configuration.
func NewDispatcher(cfg config.NotificationsConfig, log *logger.Logger) *Dispatcher {
	d := &Dispatcher{log: log}

	httpClient := &http.Client{
		Timeout: defaultHTTPTimeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			IdleConnTimeout:     30 * time.Second,
		},
	}

	if cfg.Discord != nil && cfg.Discord.Enabled {
		d.notifiers = append(d.notifiers, &Discord{
			baseNotifier: baseNotifier{name: "Discord", enabled: true, events: parseEvents(cfg.Discord.Events)},
			webhookURL:   cfg.Discord.WebhookURL,
			httpClient:   httpClient,
		})
	}

	if cfg.Webhook != nil && cfg.Webhook.Enabled {
		method := cfg.Webhook.Method
		if method == "" {
			method = http.MethodPost
		}
		d.notifiers = append(d.notifiers, &Webhook{
			baseNotifier: baseNotifier{name: "Webhook", enabled: true, events: parseEvents(cfg.Webhook.Events)},
			url:          cfg.Webhook.Endpoint,
			method:       method,
			httpClient:   httpClient,
		})
	}

	return d
}

// Dispatch sends a notification to all enabled notifiers that match the
// event. Sends are non-blocking; each notifier runs in its own goroutine.
func (d *Dispatcher) Dispatch(ctx context.Context, n Notification) {
	for _, notifier := range d.notifiers {
		if !notifier.IsEnabled() || !notifier.ShouldNotify(n.Event) {
			continue
		}
		go func(notifier Notifier) {
			sendCtx, cancel := context.WithTimeout(ctx, defaultHTTPTimeout)
			defer cancel()
			if err := notifier.Send(sendCtx, n); err != nil {
				d.log.Warn("notification send failed",
					"provider", notifier.Name(),
					"event", string(n.Event),
					"error", err,
				)
			}
		}(notifier)
	}
}

// NotifyFunc returns a logger.NotifyFunc that dispatches notifications
// via this Dispatcher, lifting the log event's attributes into the
// notification's contextual fields.
func (d *Dispatcher) NotifyFunc() logger.NotifyFunc {
	return func(ctx context.Context, event model.Event, message string, fields map[string]string) {
		d.Dispatch(ctx, Notification{
			Event:    event,
			Title:    "emotewatch",
			Message:  message,
			Channel:  fields["channel"],
			Emote:    fields["emote"],
			Actor:    fields["actor"],
			Action:   actionForEvent(event),
			EmoteURL: fields["url"],
		})
	}
}

// actionForEvent maps emote-change events to the action recorded in
// history rows; other events have no action.
func actionForEvent(event model.Event) string {
	switch event {
	case model.EventEmoteAdded:
		return "added"
	case model.EventEmoteRemoved:
		return "removed"
	default:
		return ""
	}
}

// HasNotifiers reports whether any notifiers are configured.
func (d *Dispatcher) HasNotifiers() bool {
	return len(d.notifiers) > 0
}

// parseEvents converts event name strings to model.Event values,
// dropping unknown names.
func parseEvents(names []string) []model.Event {
	events := make([]model.Event, 0, len(names))
	for _, name := range names {
		e := model.ParseEvent(name)
		if e != "" {
			events = append(events, e)
		}
	}
	return events
}

func containsEvent(events []model.Event, event model.Event) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}
