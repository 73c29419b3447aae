package channelmux

import "github.com/obsidianstack/channelmux/pkg/types"

// handleFrame routes one inbound frame. Frames naming a channel go to that
// channel's handler; the rest go to the handshake or the listener table.
func (c *Connection) handleFrame(frame []byte) {
	env, err := types.Decode(frame)
	if err != nil {
		c.metrics.framesInbound.WithLabelValues("malformed").Inc()
		c.log.Warn("channelmux: discarding malformed frame", "err", err, "size", len(frame))
		return
	}

	if env.Channel != "" {
		ch, ok := c.registry.lookup(env.Channel)
		if !ok {
			c.metrics.framesInbound.WithLabelValues("unrouted").Inc()
			c.log.Debug("channelmux: event for inactive channel dropped",
				"channel", env.Channel, "event", env.Event)
			return
		}
		c.metrics.framesInbound.WithLabelValues("channel").Inc()
		c.safely("channel handler", func() { ch.HandleEvent(env.Event, env.Data) })
		return
	}

	if env.Event == types.EventWhoami {
		c.metrics.framesInbound.WithLabelValues("handshake").Inc()
		c.handleWhoami(env)
		return
	}

	l, ok := c.listeners[env.Event]
	if !ok {
		c.metrics.framesInbound.WithLabelValues("unrouted").Inc()
		return
	}
	c.metrics.framesInbound.WithLabelValues("listener").Inc()
	c.safely("listener", func() { l.fn(env.Data) })
}
