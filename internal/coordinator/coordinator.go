// Package coordinator implements the EventCoordinator (C9): it owns
// transport selection between EventSubWS (primary) and IRC (fallback),
// forwarding every received event to a single sink and reflecting
// current transport health.
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/cliparino/cliparino/internal/backoff"
	"github.com/cliparino/cliparino/internal/event"
	"github.com/cliparino/cliparino/internal/eventsource"
	"github.com/cliparino/cliparino/internal/health"
	"github.com/cliparino/cliparino/pkg/utils"
)

const healthComponent = "twitch_events"

// Sink receives every normalized event, regardless of transport.
type Sink interface {
	Handle(evt event.TwitchEvent)
}

// Coordinator alternates between EventSubWS and IRC, always running
// exactly one at a time, and reports which is live to HealthReporter.
type Coordinator struct {
	primary  eventsource.Source
	fallback eventsource.Source
	sink     Sink
	health   *health.Reporter
	logger   *utils.StructuredLogger
}

// New constructs a Coordinator. primary is tried first on every cycle;
// fallback is used whenever primary's stream ends.
func New(primary, fallback eventsource.Source, sink Sink, reporter *health.Reporter, logger *utils.StructuredLogger) *Coordinator {
	return &Coordinator{
		primary:  primary,
		fallback: fallback,
		sink:     sink,
		health:   reporter,
		logger:   logger.With("coordinator"),
	}
}

// Run blocks until ctx is canceled, continuously alternating between
// primary and fallback transports as each one's stream ends.
func (c *Coordinator) Run(ctx context.Context) {
	attempt := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		primaryOK := c.runPrimary(ctx)
		if ctx.Err() != nil {
			return
		}
		if primaryOK {
			attempt = 0
		}

		c.health.Report(healthComponent, health.Degraded, fmt.Errorf("EventSub unavailable, using IRC"))
		fallbackOK := c.runFallback(ctx)
		if ctx.Err() != nil {
			return
		}
		if !fallbackOK {
			c.health.Report(healthComponent, health.Unhealthy, fmt.Errorf("both EventSub and IRC failed"))
		}

		attempt++
		select {
		case <-time.After(backoff.Default.Delay(attempt)):
		case <-ctx.Done():
			return
		}
	}
}

// runPrimary starts the primary transport and drains it until it ends.
// Start completing without error already means the full dial, handshake,
// and subscription sequence succeeded, so that alone is the liveness
// signal — a quiet chat produces no events but is not a transport
// failure. Returns true if the transport started successfully (so the
// caller resets its backoff), false otherwise.
func (c *Coordinator) runPrimary(ctx context.Context) bool {
	events, err := c.primary.Start(ctx)
	if err != nil {
		c.logger.Warn("primary transport failed to start", map[string]interface{}{"error": err.Error()})
		return false
	}
	defer c.primary.Stop()

	c.health.Report(healthComponent, health.Healthy, nil)
	c.drain(ctx, events)
	return true
}

func (c *Coordinator) runFallback(ctx context.Context) bool {
	events, err := c.fallback.Start(ctx)
	if err != nil {
		c.logger.Warn("fallback transport failed to start", map[string]interface{}{"error": err.Error()})
		return false
	}
	defer c.fallback.Stop()

	c.drain(ctx, events)
	return true
}

func (c *Coordinator) drain(ctx context.Context, events <-chan event.TwitchEvent) {
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.sink.Handle(evt)
		case <-ctx.Done():
			return
		}
	}
}
