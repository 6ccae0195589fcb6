// Package eventsource implements the two Twitch event transports
// (EventSource ×2, C8): EventSubWS (primary) and IRC (fallback). Both
// share a single interface so the EventCoordinator can swap between
// them without knowing which is live.
package eventsource

import (
	"context"

	"github.com/cliparino/cliparino/internal/event"
)

// Source is the uniform interface both EventSubWS and IRC satisfy.
type Source interface {
	// Start connects and begins emitting events, returning the receive
	// channel the coordinator drains. The channel closes when the
	// source stops, fatally or cleanly.
	Start(ctx context.Context) (<-chan event.TwitchEvent, error)
	// Stop closes the connection and releases resources.
	Stop()
}

// eventChannelCapacity bounds the buffered event channel both sources
// use; the coordinator is expected to drain promptly, but a burst of
// chat activity shouldn't block the read loop.
const eventChannelCapacity = 64
