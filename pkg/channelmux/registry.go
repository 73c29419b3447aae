package channelmux

import (
	"sort"
	"sync"
)

// registry tracks channels in three phases: waiting for identity (backlog),
// waiting for authorization (pending) and subscribed (active).
//
// Only the connection loop mutates it. active is guarded by mu because
// Channels() reads it from other goroutines.
type registry struct {
	backlog []Channel
	pending map[string]*pendingAuth
	seq     uint64

	mu     sync.RWMutex
	active map[string]Channel
}

type pendingAuth struct {
	ch  Channel
	seq uint64
}

func newRegistry() *registry {
	return &registry{
		pending: make(map[string]*pendingAuth),
		active:  make(map[string]Channel),
	}
}

// enqueue appends ch to the backlog. If a channel with the same name is
// already waiting, its handler is replaced in place and enqueue returns false.
func (r *registry) enqueue(ch Channel) bool {
	for i, queued := range r.backlog {
		if queued.Name() == ch.Name() {
			r.backlog[i] = ch
			return false
		}
	}
	r.backlog = append(r.backlog, ch)
	return true
}

// takeBacklog empties the backlog and returns it in request order.
func (r *registry) takeBacklog() []Channel {
	b := r.backlog
	r.backlog = nil
	return b
}

// beginAuth records an in-flight authorization for ch and returns its
// sequence number. ok is false when one is already in flight; the pending
// handler is then replaced by ch.
func (r *registry) beginAuth(ch Channel) (seq uint64, ok bool) {
	if p, exists := r.pending[ch.Name()]; exists {
		p.ch = ch
		return p.seq, false
	}
	r.seq++
	r.pending[ch.Name()] = &pendingAuth{ch: ch, seq: r.seq}
	return r.seq, true
}

// finishAuth clears the in-flight authorization for name. It returns the
// channel to register, or false when the authorization was cancelled or
// superseded in the meantime.
func (r *registry) finishAuth(name string, seq uint64) (Channel, bool) {
	p, ok := r.pending[name]
	if !ok || p.seq != seq {
		return nil, false
	}
	delete(r.pending, name)
	return p.ch, true
}

// cancelAuth forgets any in-flight authorization for name.
func (r *registry) cancelAuth(name string) bool {
	_, ok := r.pending[name]
	delete(r.pending, name)
	return ok
}

func (r *registry) activate(ch Channel) {
	r.mu.Lock()
	r.active[ch.Name()] = ch
	r.mu.Unlock()
}

func (r *registry) deactivate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.active[name]
	delete(r.active, name)
	return ok
}

func (r *registry) lookup(name string) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.active[name]
	return ch, ok
}

// names returns the active channel names, sorted.
func (r *registry) names() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.active))
	for name := range r.active {
		out = append(out, name)
	}
	r.mu.RUnlock()
	sort.Strings(out)
	return out
}

func (r *registry) activeCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}
