package channelmux

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout is the deadline for a single frame write.
	writeTimeout = 10 * time.Second

	// maxFrameSize bounds a single inbound frame.
	maxFrameSize = 1 << 20
)

// ErrClosed is returned by Transport.Send after Close.
var ErrClosed = errors.New("channelmux: transport closed")

// TransportEvents are the callbacks a Transport invokes. They may be called
// from any goroutine; Closed is called at most once.
type TransportEvents struct {
	Open    func()
	Message func(frame []byte)
	Closed  func(err error)
}

// Transport is the socket primitive underneath a Connection. Send must not
// block, and frames accepted by Send are written in order.
type Transport interface {
	Start(ev TransportEvents)
	Send(frame []byte) error
	Close() error
}

// WebsocketTransport is a Transport backed by gorilla/websocket. A writer
// goroutine owns all writes; the reader runs on the goroutine that dialled.
type WebsocketTransport struct {
	url    string
	dialer *websocket.Dialer
	header http.Header

	// send is unbounded; the Connection's outbox is the only bound.
	send *mailbox[[]byte]

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// NewWebsocketTransport returns a transport that dials url when started.
// A nil dialer uses a copy of websocket.DefaultDialer.
func NewWebsocketTransport(url string, dialer *websocket.Dialer, header http.Header) *WebsocketTransport {
	if dialer == nil {
		d := *websocket.DefaultDialer
		d.HandshakeTimeout = DefaultHandshakeTimeout
		dialer = &d
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WebsocketTransport{
		url:    url,
		dialer: dialer,
		header: header,
		send:   newMailbox[[]byte](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start dials in the background and reports progress through ev.
func (t *WebsocketTransport) Start(ev TransportEvents) {
	go t.run(ev)
}

// Send queues frame for the writer goroutine.
func (t *WebsocketTransport) Send(frame []byte) error {
	if t.ctx.Err() != nil || !t.send.post(frame) {
		return ErrClosed
	}
	return nil
}

// Close stops the transport. The writer sends a close frame if connected.
// Frames not yet written are dropped.
func (t *WebsocketTransport) Close() error {
	t.once.Do(func() {
		t.cancel()
		t.send.close()
	})
	return nil
}

func (t *WebsocketTransport) run(ev TransportEvents) {
	conn, resp, err := t.dialer.DialContext(t.ctx, t.url, t.header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		ev.Closed(fmt.Errorf("websocket: dial %s: %w", t.url, err))
		return
	}

	ev.Open()

	go t.writePump(conn)
	ev.Closed(t.readPump(conn, ev.Message))
}

// writePump drains the send queue until the transport is closed or a write
// fails. It owns conn.Close.
func (t *WebsocketTransport) writePump(conn *websocket.Conn) {
	defer conn.Close()

	for {
		select {
		case <-t.ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case <-t.send.wake:
			for _, frame := range t.send.take() {
				if t.ctx.Err() != nil {
					break
				}
				conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
				if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
					return
				}
			}
		}
	}
}

// readPump delivers text frames until the connection fails or closes.
func (t *WebsocketTransport) readPump(conn *websocket.Conn, onMessage func([]byte)) error {
	conn.SetReadLimit(maxFrameSize)
	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if t.ctx.Err() != nil {
				return ErrClosed
			}
			return fmt.Errorf("websocket: read: %w", err)
		}
		onMessage(frame)
	}
}
