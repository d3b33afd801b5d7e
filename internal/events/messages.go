// Package events implements the 7TV EventAPI WebSocket client: handshake
// and subscription lifecycle, reconnection with linear backoff, and
// decoding of emote-set delta dispatches into add/remove sets.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/foamchat/emotewatch/internal/model"
)

// Opcode tags every frame exchanged with the EventAPI.
type Opcode int

// EventAPI opcodes. 0–7 are server→client, 34–36 are client→server.
const (
	// OpDispatch carries a typed event with its change payload.
	OpDispatch Opcode = 0
	// OpHello is the server greeting with session metadata.
	OpHello Opcode = 1
	// OpHeartbeat is a periodic liveness signal from the server.
	OpHeartbeat Opcode = 2
	// OpReconnect asks the client to reconnect.
	OpReconnect Opcode = 4
	// OpAck acknowledges a client command.
	OpAck Opcode = 5
	// OpError reports a rejected subscription.
	OpError Opcode = 6
	// OpEndOfStream announces a graceful server-side close.
	OpEndOfStream Opcode = 7
	// OpResume asks the server to resume a previous session.
	OpResume Opcode = 34
	// OpSubscribe subscribes to an event type under a condition.
	OpSubscribe Opcode = 35
	// OpUnsubscribe removes a subscription.
	OpUnsubscribe Opcode = 36
)

// String returns the opcode name used in logs and metric labels.
func (op Opcode) String() string {
	switch op {
	case OpDispatch:
		return "dispatch"
	case OpHello:
		return "hello"
	case OpHeartbeat:
		return "heartbeat"
	case OpReconnect:
		return "reconnect"
	case OpAck:
		return "ack"
	case OpError:
		return "error"
	case OpEndOfStream:
		return "end_of_stream"
	case OpResume:
		return "resume"
	case OpSubscribe:
		return "subscribe"
	case OpUnsubscribe:
		return "unsubscribe"
	default:
		return fmt.Sprintf("op%d", int(op))
	}
}

// Event types dispatched by the EventAPI, of the form <domain>.<action>.
const (
	EventTypeEmoteSetUpdate    = "emote_set.update"
	EventTypeEmoteUpdate       = "emote.update"
	EventTypeEntitlementCreate = "entitlement.create"
)

// envelope is the outer frame shape: an opcode, an optional server
// timestamp, and an opcode-dependent payload.
type envelope struct {
	Op        Opcode          `json:"op"`
	Timestamp int64           `json:"t,omitempty"`
	Data      json.RawMessage `json:"d,omitempty"`
}

// dispatchPayload is the body of an OpDispatch frame.
type dispatchPayload struct {
	Type string          `json:"type"`
	Body model.ChangeMap `json:"body"`
}

// helloPayload is the body of an OpHello frame.
type helloPayload struct {
	HeartbeatInterval int64  `json:"heartbeat_interval"`
	SessionID         string `json:"session_id"`
	SubscriptionLimit int    `json:"subscription_limit"`
}

// heartbeatPayload is the body of an OpHeartbeat frame.
type heartbeatPayload struct {
	Count int64 `json:"count"`
}

// ackPayload is the body of an OpAck frame.
type ackPayload struct {
	Command string          `json:"command"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// closePayload is the body of OpError and OpEndOfStream frames, and of
// an optional OpReconnect body.
type closePayload struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// subscribePayload is the body of OpSubscribe and OpUnsubscribe frames.
type subscribePayload struct {
	Type      string            `json:"type"`
	Condition map[string]string `json:"condition"`
}

// entitlementCondition builds the subscription filter for entitlement
// events on a Twitch channel.
func entitlementCondition(channelID string) map[string]string {
	return map[string]string{
		"platform": "TWITCH",
		"ctx":      "channel",
		"id":       channelID,
	}
}

// objectCondition builds the subscription filter for events on a single
// object, such as an emote set.
func objectCondition(objectID string) map[string]string {
	return map[string]string{"object_id": objectID}
}
