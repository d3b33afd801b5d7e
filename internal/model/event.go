package model

import "strings"

// Event represents an emotewatch event type for notification filtering
// and logging.
type Event string

// Events emitted by the watcher and the event client.
const (
	EventEmoteAdded       Event = "EMOTE_ADDED"
	EventEmoteRemoved     Event = "EMOTE_REMOVED"
	EventEventsConnected  Event = "EVENTS_CONNECTED"
	EventEventsReconnect  Event = "EVENTS_RECONNECT"
	EventEventsExhausted  Event = "EVENTS_EXHAUSTED"
	EventChatMention      Event = "CHAT_MENTION"
	EventChannelResolved  Event = "CHANNEL_RESOLVED"
	EventEmoteSetResolved Event = "EMOTE_SET_RESOLVED"
)

// ParseEvent converts an event name string to an Event, returning the
// empty Event for unknown names.
func ParseEvent(name string) Event {
	switch Event(strings.ToUpper(strings.TrimSpace(name))) {
	case EventEmoteAdded:
		return EventEmoteAdded
	case EventEmoteRemoved:
		return EventEmoteRemoved
	case EventEventsConnected:
		return EventEventsConnected
	case EventEventsReconnect:
		return EventEventsReconnect
	case EventEventsExhausted:
		return EventEventsExhausted
	case EventChatMention:
		return EventChatMention
	case EventChannelResolved:
		return EventChannelResolved
	case EventEmoteSetResolved:
		return EventEmoteSetResolved
	default:
		return ""
	}
}
