package channelmux

import "encoding/json"

// Channel receives the events published on one named channel.
type Channel interface {
	Name() string
	HandleEvent(event string, data json.RawMessage)
}

// HandlerFunc handles a channel event.
type HandlerFunc func(event string, data json.RawMessage)

// NewChannel returns a Channel that passes every event to fn.
func NewChannel(name string, fn HandlerFunc) Channel {
	return &funcChannel{name: name, fn: fn}
}

type funcChannel struct {
	name string
	fn   HandlerFunc
}

func (c *funcChannel) Name() string { return c.name }

func (c *funcChannel) HandleEvent(event string, data json.RawMessage) {
	if c.fn != nil {
		c.fn(event, data)
	}
}
