package channelmux

import "github.com/obsidianstack/channelmux/pkg/types"

// outbox holds envelopes sent while the transport is not writable.
// A negative limit means unbounded.
type outbox struct {
	items []types.Envelope
	limit int
}

func newOutbox(limit int) *outbox {
	return &outbox{limit: limit}
}

// push appends env. When the outbox is at its limit env is rejected and the
// queued envelopes are left untouched, so delivery order never has holes.
func (o *outbox) push(env types.Envelope) bool {
	if o.limit >= 0 && len(o.items) >= o.limit {
		return false
	}
	o.items = append(o.items, env)
	return true
}

// drain empties the outbox and returns its contents in enqueue order.
func (o *outbox) drain() []types.Envelope {
	items := o.items
	o.items = nil
	return items
}

func (o *outbox) len() int { return len(o.items) }
