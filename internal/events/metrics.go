package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	framesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "frames_received_total",
		Help:      "EventAPI frames received, by opcode.",
	}, []string{"op"})

	framesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "frames_dropped_total",
		Help:      "EventAPI frames dropped because they could not be decoded.",
	})

	reconnectsScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "reconnects_scheduled_total",
		Help:      "Reconnect attempts scheduled after abnormal closes.",
	})

	connectsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "connects_total",
		Help:      "Successful WebSocket connections to the EventAPI.",
	})

	emotesAdded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "emotes_added_total",
		Help:      "Emotes added across all decoded emote-set deltas.",
	})

	emotesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "emotewatch",
		Subsystem: "events",
		Name:      "emotes_removed_total",
		Help:      "Emotes removed across all decoded emote-set deltas.",
	})
)
