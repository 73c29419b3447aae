package channelmux

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/obsidianstack/channelmux/pkg/types"
)

// Listener handles a channel-less event registered with On.
type Listener func(data json.RawMessage)

// Binding identifies one registration made with On.
type Binding uint64

type listener struct {
	fn Listener
	id Binding
}

// Connection multiplexes channels over a single transport. All methods are
// safe for concurrent use and none of them block on the network.
type Connection struct {
	opts      Options
	log       *slog.Logger
	metrics   *metrics
	transport Transport
	auth      Authorizer

	inbox     *mailbox[func()]
	keepalive *time.Ticker
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	// authCtx is cancelled by Close so in-flight authorization requests stop.
	authCtx    context.Context
	authCancel context.CancelFunc

	state       atomic.Int32
	socketID    atomic.Pointer[string]
	identified  chan struct{}
	lost        chan struct{}
	lostOnce    sync.Once
	nextBinding atomic.Uint64

	// Owned by the loop goroutine.
	writable  bool
	outbox    *outbox
	registry  *registry
	listeners map[string]listener
}

// Dial validates opts and returns a Connection over a gorilla/websocket
// transport, authorizing protected channels against opts.AuthEndpoint.
func Dial(opts Options) (*Connection, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	tr := NewWebsocketTransport(opts.Host, opts.Dialer, opts.Header)
	return New(opts, tr, NewHTTPAuthorizer(opts.AuthEndpoint, opts.HTTPClient)), nil
}

// New returns a Connection over the given transport. The whoami request is
// queued immediately and the transport is started.
func New(opts Options, transport Transport, auth Authorizer) *Connection {
	opts = opts.withDefaults()
	authCtx, authCancel := context.WithCancel(context.Background())

	c := &Connection{
		opts:       opts,
		log:        opts.Logger.With("host", opts.Host),
		metrics:    newMetrics(opts.Registerer),
		transport:  transport,
		auth:       auth,
		inbox:      newMailbox[func()](),
		keepalive:  time.NewTicker(opts.KeepaliveInterval),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
		authCtx:    authCtx,
		authCancel: authCancel,
		identified: make(chan struct{}),
		lost:       make(chan struct{}),
		outbox:     newOutbox(opts.BufferLimit),
		registry:   newRegistry(),
		listeners:  make(map[string]listener),
	}
	c.state.Store(int32(StateConnecting))

	// Nothing else runs yet, so the loop-owned send path is safe to call here.
	c.send(types.Envelope{Event: types.EventWhoami})

	go c.run()
	transport.Start(TransportEvents{
		Open:    func() { c.post(c.handleOpen) },
		Message: func(frame []byte) { c.post(func() { c.handleFrame(frame) }) },
		Closed:  func(err error) { c.post(func() { c.handleTransportClosed(err) }) },
	})
	return c
}

// State returns the current lifecycle state. It does not reflect transport
// loss: there is no reconnect, so a dropped transport leaves the state where it
// was and later sends are buffered. Watch Disconnected for that.
func (c *Connection) State() State { return State(c.state.Load()) }

// SocketID returns the identity issued by the server, or "" before the
// handshake. It keeps returning the last identity after Close.
func (c *Connection) SocketID() string {
	if p := c.socketID.Load(); p != nil {
		return *p
	}
	return ""
}

// Identified is closed once the socket identity is known.
func (c *Connection) Identified() <-chan struct{} { return c.identified }

// Disconnected is closed when the transport is lost, including a failed dial.
// It is not closed by Close.
func (c *Connection) Disconnected() <-chan struct{} { return c.lost }

// Done is closed when the connection loop has exited after Close.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Channels returns the names of the active channels, sorted.
func (c *Connection) Channels() []string { return c.registry.names() }

// Send transmits env, or buffers it until the transport is open.
func (c *Connection) Send(env types.Envelope) {
	c.post(func() { c.send(env) })
}

// On registers fn for channel-less frames carrying event, replacing any
// previous registration. Registering a nil fn removes the listener. The
// whoami event is reserved and cannot be bound.
func (c *Connection) On(event string, fn Listener) Binding {
	id := Binding(c.nextBinding.Add(1))
	c.post(func() {
		if event == types.EventWhoami {
			c.log.Warn("channelmux: event name is reserved, listener ignored", "event", event)
			return
		}
		if fn == nil {
			delete(c.listeners, event)
			return
		}
		c.listeners[event] = listener{fn: fn, id: id}
	})
	return id
}

// UnbindEvent removes the listener for event. When bindings are given, the
// listener is only removed if it is one of them.
func (c *Connection) UnbindEvent(event string, bindings ...Binding) {
	c.post(func() {
		l, ok := c.listeners[event]
		if !ok {
			return
		}
		if len(bindings) == 0 {
			delete(c.listeners, event)
			return
		}
		for _, b := range bindings {
			if l.id == b {
				delete(c.listeners, event)
				return
			}
		}
	})
}

// Close tears the connection down: listeners stop firing, the keepalive
// timer stops and the transport is closed. Envelopes still buffered are
// discarded. Close is idempotent and does not wait for the loop to exit.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		c.inbox.close()
		c.keepalive.Stop()
		c.authCancel()
		if err := c.transport.Close(); err != nil {
			c.log.Warn("channelmux: transport close failed", "err", err)
		}
		close(c.quit)
	})
}

// --- loop -------------------------------------------------------------------

func (c *Connection) post(fn func()) {
	if !c.inbox.post(fn) {
		c.log.Debug("channelmux: connection closed, operation dropped")
	}
}

func (c *Connection) closed() bool { return c.State() == StateClosed }

// run executes queued operations and keepalive ticks one at a time until Close.
func (c *Connection) run() {
	defer close(c.done)

	for {
		select {
		case <-c.quit:
			c.shutdown()
			return

		case <-c.inbox.wake:
			for _, fn := range c.inbox.take() {
				if c.closed() {
					break
				}
				fn()
			}

		case <-c.keepalive.C:
			if !c.closed() {
				c.log.Debug("channelmux: sending ping")
				c.send(types.Envelope{Event: types.EventPing})
			}
		}
	}
}

func (c *Connection) shutdown() {
	if n := c.outbox.len(); n > 0 {
		c.log.Info("channelmux: discarding unsent envelopes", "count", n)
	}
	c.outbox.drain()
	c.listeners = make(map[string]listener)
	c.metrics.buffered.Set(0)
	c.log.Info("channelmux: closed", "socket_id", c.SocketID())
}

// --- send path --------------------------------------------------------------

// send writes env when the transport is writable and buffers it otherwise.
func (c *Connection) send(env types.Envelope) {
	if c.State() != StateOpen || !c.writable {
		if !c.outbox.push(env) {
			c.metrics.framesDropped.WithLabelValues("buffer_full").Inc()
			c.log.Warn("channelmux: outbound buffer full, dropping envelope",
				"event", env.Event, "limit", c.opts.BufferLimit)
			return
		}
		c.metrics.buffered.Set(float64(c.outbox.len()))
		return
	}
	c.write(env)
}

func (c *Connection) write(env types.Envelope) {
	frame, err := types.Encode(env)
	if err != nil {
		c.metrics.framesDropped.WithLabelValues("encode").Inc()
		c.log.Error("channelmux: encode failed", "event", env.Event, "err", err)
		return
	}
	if err := c.transport.Send(frame); err != nil {
		c.metrics.framesDropped.WithLabelValues("transport").Inc()
		c.log.Warn("channelmux: transport send failed", "event", env.Event, "err", err)
		return
	}
	c.metrics.framesSent.Inc()
}

// handleOpen flushes the outbound buffer in enqueue order.
func (c *Connection) handleOpen() {
	if c.closed() {
		return
	}
	c.state.CompareAndSwap(int32(StateConnecting), int32(StateOpen))
	c.writable = true

	pending := c.outbox.drain()
	c.metrics.buffered.Set(0)
	c.log.Info("channelmux: transport open", "flushing", len(pending))
	for _, env := range pending {
		c.write(env)
	}
}

func (c *Connection) handleTransportClosed(err error) {
	c.writable = false
	c.lostOnce.Do(func() { close(c.lost) })
	c.log.Warn("channelmux: transport closed", "err", err)
}

// safely runs an application callback, containing panics so the loop survives.
func (c *Connection) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("channelmux: "+what+" panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}
