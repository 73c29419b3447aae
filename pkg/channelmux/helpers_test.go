package channelmux

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/channelmux/pkg/types"
)

// fakeTransport records sent frames and lets tests fire transport events.
type fakeTransport struct {
	mu     sync.Mutex
	ev     TransportEvents
	frames []string
	closed bool
}

func (f *fakeTransport) Start(ev TransportEvents) {
	f.mu.Lock()
	f.ev = ev
	f.mu.Unlock()
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrClosed
	}
	f.frames = append(f.frames, string(frame))
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) events() TransportEvents {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ev
}

func (f *fakeTransport) open()                { f.events().Open() }
func (f *fakeTransport) deliver(frame string) { f.events().Message([]byte(frame)) }

func (f *fakeTransport) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	copy(out, f.frames)
	return out
}

// countSent returns how many sent frames contain substr.
func (f *fakeTransport) countSent(substr string) int {
	n := 0
	for _, fr := range f.sent() {
		if strings.Contains(fr, substr) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type authCall struct {
	socketID string
	channel  string
}

// fakeAuthorizer records calls. When release is non-nil each call blocks until
// release is closed or the context is cancelled.
type fakeAuthorizer struct {
	mu      sync.Mutex
	calls   []authCall
	token   string
	err     error
	release chan struct{}
	started chan struct{}
}

func (a *fakeAuthorizer) Authorize(ctx context.Context, socketID, channel string) (string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, authCall{socketID: socketID, channel: channel})
	token, err := a.token, a.err
	release, started := a.release, a.started
	a.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return token, err
}

func (a *fakeAuthorizer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

func envelope(event string) types.Envelope {
	return types.Envelope{Event: event}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestConn(t *testing.T, auth Authorizer, mutate ...func(*Options)) (*Connection, *fakeTransport) {
	t.Helper()
	if auth == nil {
		auth = &fakeAuthorizer{token: "unused"}
	}
	opts := Options{
		Host:              "ws://peer.test/ws",
		AuthEndpoint:      "http://peer.test/auth",
		Logger:            discardLogger(),
		KeepaliveInterval: time.Hour,
	}
	for _, fn := range mutate {
		fn(&opts)
	}
	tr := &fakeTransport{}
	c := New(opts, tr, auth)
	t.Cleanup(c.Close)
	return c, tr
}

// settle blocks until every operation queued on c so far has run.
func settle(t *testing.T, c *Connection) {
	t.Helper()
	done := make(chan struct{})
	require.True(t, c.inbox.post(func() { close(done) }), "connection already closed")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection loop did not settle")
	}
}

// identify opens the transport and completes the handshake with socketID.
func identify(t *testing.T, c *Connection, tr *fakeTransport, socketID string) {
	t.Helper()
	tr.open()
	tr.deliver(`{"event":"whoami","data":{"socket_id":"` + socketID + `"}}`)
	settle(t, c)
	require.Equal(t, socketID, c.SocketID())
}

// recorder collects events delivered to a channel handler.
type recorder struct {
	mu     sync.Mutex
	events []string
	data   []json.RawMessage
}

func (r *recorder) handle(event string, data json.RawMessage) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.data = append(r.data, data)
	r.mu.Unlock()
}

func (r *recorder) got() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}
