package state

import (
	"context"

	"fleetdesk/internal/auth/credentials"
)

const listenerBuffer = 32

// Listen feeds credential events from every source into the container until
// ctx is done. Events are applied one at a time in arrival order. A
// signed_out event clears local state only, since the store has already
// ended the session; every other kind revalidates the event's session.
func Listen(ctx context.Context, c *Container, sources ...credentials.EventSource) error {
	events := make(chan credentials.Event, listenerBuffer)

	unsubscribes := make([]func(), 0, len(sources))
	for _, src := range sources {
		unsubscribes = append(unsubscribes, src.OnSessionChange(func(ev credentials.Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}))
	}
	defer func() {
		for _, unsubscribe := range unsubscribes {
			unsubscribe()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-events:
			c.HandleEvent(ctx, ev)
		}
	}
}

// HandleEvent applies one credential event.
func (c *Container) HandleEvent(ctx context.Context, ev credentials.Event) {
	c.logger.DebugContext(ctx, "credential event", "kind", string(ev.Kind))
	if ev.Kind == credentials.EventSignedOut {
		c.clearFromEvent(ctx, ev.Session)
		return
	}
	c.Validate(ctx, ev.Session)
}
