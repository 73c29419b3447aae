package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/obsidianstack/channelmux/pkg/types"
	"github.com/obsidianstack/channelmux/server/internal/broker"
)

const (
	// writeTimeout is the deadline for a single write to a socket.
	writeTimeout = 10 * time.Second

	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 64 << 10

	defaultIdleTimeout = 60 * time.Second
	defaultSendBuffer  = 64

	// clientEventPrefix marks events a socket may publish to its own channels.
	clientEventPrefix = "client-"
)

// ErrReservedEvent is returned by Publish for protocol event names.
var ErrReservedEvent = errors.New("hub: event name is reserved")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins; apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Verifier checks the auth value presented when subscribing to a protected
// channel.
type Verifier interface {
	Verify(token, socketID, channel string) error
}

// Options configures a Hub.
type Options struct {
	Tokens      Verifier
	Broker      broker.Broker
	IdleTimeout time.Duration
	SendBuffer  int
	Registerer  prometheus.Registerer
}

// ChannelInfo describes one channel with local members.
type ChannelInfo struct {
	Name    string `json:"name"`
	Sockets int    `json:"sockets"`
}

// Hub manages websocket sockets, their channel memberships and the delivery
// of published events.
type Hub struct {
	tokens  Verifier
	broker  broker.Broker
	idle    time.Duration
	sendBuf int
	metrics *metrics
	ready   chan struct{}

	mu       sync.RWMutex
	sockets  map[string]*socket
	channels map[string]map[*socket]struct{}
}

// New creates a Hub. Call Run to start delivering published events.
func New(opts Options) *Hub {
	if opts.Registerer == nil {
		opts.Registerer = prometheus.NewRegistry()
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	return &Hub{
		tokens:   opts.Tokens,
		broker:   opts.Broker,
		idle:     opts.IdleTimeout,
		sendBuf:  opts.SendBuffer,
		metrics:  newMetrics(opts.Registerer),
		ready:    make(chan struct{}),
		sockets:  make(map[string]*socket),
		channels: make(map[string]map[*socket]struct{}),
	}
}

// Ready is closed once Run has subscribed to the broker.
func (h *Hub) Ready() <-chan struct{} { return h.ready }

// Run consumes the broker and delivers every message to the channel's local
// members. It blocks until ctx is cancelled, then closes all sockets.
func (h *Hub) Run(ctx context.Context) error {
	msgs, err := h.broker.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("hub: subscribe to broker: %w", err)
	}
	close(h.ready)
	defer h.closeAll()

	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-msgs:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("hub: broker stream closed")
			}
			h.deliver(m)
		}
	}
}

// Publish sends event on channel to every member, on every server instance
// sharing the broker.
func (h *Hub) Publish(ctx context.Context, channel, event string, data json.RawMessage) error {
	if channel == "" || event == "" {
		return fmt.Errorf("hub: channel and event are required")
	}
	switch event {
	case types.EventWhoami, types.EventPing, types.EventSubscribe, types.EventUnsubscribe, types.EventSubscriptionError:
		return ErrReservedEvent
	}
	return h.broker.Publish(ctx, broker.Message{Channel: channel, Event: event, Data: data})
}

// ServeHTTP upgrades the HTTP connection to websocket and serves the socket
// until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		return
	}

	s := &socket{
		id:       uuid.NewString(),
		conn:     conn,
		send:     make(chan []byte, h.sendBuf),
		done:     make(chan struct{}),
		channels: make(map[string]struct{}),
	}
	h.register(s)
	defer h.unregister(s)

	slog.Debug("hub: socket connected", "socket_id", s.id, "remote", r.RemoteAddr)

	go s.writePump(h.pingPeriod())
	h.readPump(s) // blocks until the connection closes
}

// Count returns the number of connected sockets.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sockets)
}

// Channels lists the channels that have local members, sorted by name.
func (h *Hub) Channels() []ChannelInfo {
	h.mu.RLock()
	out := make([]ChannelInfo, 0, len(h.channels))
	for name, members := range h.channels {
		out = append(out, ChannelInfo{Name: name, Sockets: len(members)})
	}
	h.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// --- internal ---------------------------------------------------------------

func (h *Hub) pingPeriod() time.Duration {
	return (h.idle * 9) / 10
}

func (h *Hub) register(s *socket) {
	h.mu.Lock()
	h.sockets[s.id] = s
	n := len(h.sockets)
	h.mu.Unlock()
	h.metrics.sockets.Set(float64(n))
}

func (h *Hub) unregister(s *socket) {
	s.close()

	h.mu.Lock()
	for name := range s.channels {
		h.leaveLocked(s, name)
	}
	delete(h.sockets, s.id)
	n := len(h.sockets)
	h.mu.Unlock()

	h.metrics.sockets.Set(float64(n))
	slog.Debug("hub: socket disconnected", "socket_id", s.id)
}

func (h *Hub) join(s *socket, channel string) {
	h.mu.Lock()
	members, ok := h.channels[channel]
	if !ok {
		members = make(map[*socket]struct{})
		h.channels[channel] = members
	}
	members[s] = struct{}{}
	s.channels[channel] = struct{}{}
	h.mu.Unlock()
}

func (h *Hub) leave(s *socket, channel string) {
	h.mu.Lock()
	h.leaveLocked(s, channel)
	h.mu.Unlock()
}

func (h *Hub) leaveLocked(s *socket, channel string) {
	delete(s.channels, channel)
	if members, ok := h.channels[channel]; ok {
		delete(members, s)
		if len(members) == 0 {
			delete(h.channels, channel)
		}
	}
}

func (h *Hub) isMember(s *socket, channel string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// deliver writes m to the channel's local members, skipping its origin. A
// socket that cannot keep up is disconnected.
func (h *Hub) deliver(m broker.Message) {
	frame, err := types.Encode(types.Envelope{Event: m.Event, Channel: m.Channel, Data: m.Data})
	if err != nil {
		slog.Error("hub: encode delivery failed", "channel", m.Channel, "err", err)
		return
	}

	h.mu.RLock()
	targets := make([]*socket, 0, len(h.channels[m.Channel]))
	for s := range h.channels[m.Channel] {
		if s.id != m.Origin {
			targets = append(targets, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if s.enqueue(frame) {
			h.metrics.delivered.Inc()
			continue
		}
		h.metrics.slowDisconnects.Inc()
		slog.Warn("hub: socket send buffer full, disconnecting", "socket_id", s.id, "channel", m.Channel)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	for _, s := range h.sockets {
		s.close()
	}
	h.sockets = make(map[string]*socket)
	h.channels = make(map[string]map[*socket]struct{})
	h.mu.Unlock()
	h.metrics.sockets.Set(0)
}

// readPump reads frames until the socket disconnects or goes idle. Every frame
// and every pong refreshes the read deadline.
func (h *Hub) readPump(s *socket) {
	defer s.conn.Close()
	s.conn.SetReadLimit(maxFrameSize)
	s.conn.SetReadDeadline(time.Now().Add(h.idle)) //nolint:errcheck
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(h.idle))
	})

	for {
		_, frame, err := s.conn.ReadMessage()
		if err != nil {
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(h.idle)) //nolint:errcheck
		h.handleFrame(s, frame)
	}
}

func (h *Hub) handleFrame(s *socket, frame []byte) {
	env, err := types.Decode(frame)
	if err != nil {
		h.metrics.received.WithLabelValues("malformed").Inc()
		slog.Debug("hub: malformed frame ignored", "socket_id", s.id, "err", err)
		return
	}

	switch env.Event {
	case types.EventWhoami:
		h.metrics.received.WithLabelValues("whoami").Inc()
		s.reply(types.EventWhoami, types.WhoamiData{SocketID: s.id})

	case types.EventPing:
		h.metrics.received.WithLabelValues("ping").Inc()

	case types.EventSubscribe:
		h.metrics.received.WithLabelValues("subscribe").Inc()
		h.handleSubscribe(s, env)

	case types.EventUnsubscribe:
		h.metrics.received.WithLabelValues("unsubscribe").Inc()
		var d types.SubscribeData
		if err := env.UnmarshalData(&d); err == nil && d.Channel != "" {
			h.leave(s, d.Channel)
			slog.Debug("hub: unsubscribed", "socket_id", s.id, "channel", d.Channel)
		}

	default:
		h.handleClientEvent(s, env)
	}
}

func (h *Hub) handleSubscribe(s *socket, env types.Envelope) {
	var d types.SubscribeData
	if err := env.UnmarshalData(&d); err != nil || d.Channel == "" {
		h.reject(s, d.Channel, "subscribe requires a channel")
		return
	}

	if types.RequiresAuth(d.Channel) {
		if d.Auth == "" {
			h.reject(s, d.Channel, "auth required")
			return
		}
		if err := h.tokens.Verify(d.Auth, s.id, d.Channel); err != nil {
			slog.Info("hub: subscription rejected", "socket_id", s.id, "channel", d.Channel, "err", err)
			h.reject(s, d.Channel, "invalid auth")
			return
		}
	}

	h.join(s, d.Channel)
	h.metrics.subscriptions.WithLabelValues("ok").Inc()
	slog.Debug("hub: subscribed", "socket_id", s.id, "channel", d.Channel)
}

type subscriptionError struct {
	Channel string `json:"channel"`
	Error   string `json:"error"`
}

func (h *Hub) reject(s *socket, channel, reason string) {
	h.metrics.subscriptions.WithLabelValues("rejected").Inc()
	s.reply(types.EventSubscriptionError, subscriptionError{Channel: channel, Error: reason})
}

// handleClientEvent relays client-* events sent on a protected channel the
// socket has joined. Anything else is ignored.
func (h *Hub) handleClientEvent(s *socket, env types.Envelope) {
	if env.Channel == "" || !strings.HasPrefix(env.Event, clientEventPrefix) ||
		!types.RequiresAuth(env.Channel) || !h.isMember(s, env.Channel) {
		h.metrics.received.WithLabelValues("ignored").Inc()
		slog.Debug("hub: frame ignored", "socket_id", s.id, "event", env.Event, "channel", env.Channel)
		return
	}

	h.metrics.received.WithLabelValues("client").Inc()
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	err := h.broker.Publish(ctx, broker.Message{
		Channel: env.Channel,
		Event:   env.Event,
		Data:    env.Data,
		Origin:  s.id,
	})
	if err != nil {
		slog.Warn("hub: relay client event failed", "socket_id", s.id, "channel", env.Channel, "err", err)
	}
}
