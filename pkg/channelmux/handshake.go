package channelmux

import "github.com/obsidianstack/channelmux/pkg/types"

// handleWhoami captures the socket identity from the server's whoami reply and
// replays the subscription backlog in request order. The identity is set at
// most once; later whoami frames are ignored.
func (c *Connection) handleWhoami(env types.Envelope) {
	var who types.WhoamiData
	if err := env.UnmarshalData(&who); err != nil || who.SocketID == "" {
		c.log.Warn("channelmux: malformed whoami reply ignored", "err", err)
		return
	}

	if current := c.SocketID(); current != "" {
		if current != who.SocketID {
			c.log.Warn("channelmux: socket identity already set, ignoring new one",
				"socket_id", current, "offered", who.SocketID)
		}
		return
	}

	sid := who.SocketID
	c.socketID.Store(&sid)
	close(c.identified)
	c.log.Info("channelmux: identified", "socket_id", sid)

	backlog := c.registry.takeBacklog()
	c.metrics.backlog.Set(0)
	for _, ch := range backlog {
		c.authorizeAndRegister(ch)
	}
}
