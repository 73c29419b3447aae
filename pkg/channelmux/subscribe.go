package channelmux

import (
	"github.com/obsidianstack/channelmux/pkg/types"
)

// Subscribe requests ch. Before the socket identity is known the request waits
// in the backlog; afterwards public channels are subscribed immediately and
// protected channels after a successful authorization.
func (c *Connection) Subscribe(ch Channel) {
	if ch == nil || ch.Name() == "" {
		c.log.Warn("channelmux: subscribe ignored, channel has no name")
		return
	}
	c.post(func() { c.subscribe(ch) })
}

// Unsubscribe sends the unsubscribe request and removes the channel from the
// active set, whether or not it was ever confirmed. An authorization still in
// flight for the channel is discarded when it completes.
func (c *Connection) Unsubscribe(name string) {
	c.post(func() { c.unsubscribe(name) })
}

func (c *Connection) subscribe(ch Channel) {
	if c.SocketID() == "" {
		if c.registry.enqueue(ch) {
			c.log.Debug("channelmux: subscription queued until identified", "channel", ch.Name())
		} else {
			c.log.Debug("channelmux: subscription already queued, handler replaced", "channel", ch.Name())
		}
		c.metrics.backlog.Set(float64(len(c.registry.backlog)))
		return
	}
	c.authorizeAndRegister(ch)
}

// authorizeAndRegister is the step shared by Subscribe and the backlog replay.
func (c *Connection) authorizeAndRegister(ch Channel) {
	name := ch.Name()

	if !types.RequiresAuth(name) {
		c.sendSubscribe(name, "")
		c.activate(ch)
		return
	}

	seq, first := c.registry.beginAuth(ch)
	if !first {
		c.log.Debug("channelmux: authorization already in flight", "channel", name)
		return
	}

	sid := c.SocketID()
	c.log.Info("channelmux: requesting authorization", "channel", name)
	go func() {
		token, err := c.auth.Authorize(c.authCtx, sid, name)
		c.post(func() { c.completeAuth(name, seq, token, err) })
	}()
}

// completeAuth runs on the loop once an authorization exchange finishes.
func (c *Connection) completeAuth(name string, seq uint64, token string, err error) {
	ch, ok := c.registry.finishAuth(name, seq)
	if !ok {
		c.metrics.authRequests.WithLabelValues("stale").Inc()
		c.log.Debug("channelmux: stale authorization discarded", "channel", name)
		return
	}
	if err != nil {
		c.metrics.authRequests.WithLabelValues("error").Inc()
		c.log.Warn("channelmux: authorization failed, channel left unsubscribed",
			"channel", name, "err", err)
		return
	}

	c.metrics.authRequests.WithLabelValues("ok").Inc()
	c.sendSubscribe(name, token)
	c.activate(ch)
}

func (c *Connection) unsubscribe(name string) {
	env, err := types.New(types.EventUnsubscribe, "", types.SubscribeData{Channel: name})
	if err != nil {
		c.log.Error("channelmux: build unsubscribe failed", "channel", name, "err", err)
		return
	}
	c.send(env)

	if c.registry.cancelAuth(name) {
		c.log.Debug("channelmux: pending authorization cancelled", "channel", name)
	}
	c.registry.deactivate(name)
	c.metrics.activeChannels.Set(float64(c.registry.activeCount()))
	c.log.Info("channelmux: unsubscribed", "channel", name)
}

func (c *Connection) sendSubscribe(name, token string) {
	env, err := types.New(types.EventSubscribe, "", types.SubscribeData{Channel: name, Auth: token})
	if err != nil {
		c.log.Error("channelmux: build subscribe failed", "channel", name, "err", err)
		return
	}
	c.send(env)
}

func (c *Connection) activate(ch Channel) {
	c.registry.activate(ch)
	c.metrics.activeChannels.Set(float64(c.registry.activeCount()))
	c.log.Info("channelmux: subscribed", "channel", ch.Name())
}
