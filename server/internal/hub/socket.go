package hub

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obsidianstack/channelmux/pkg/types"
)

// socket is one connected websocket client.
type socket struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	done chan struct{}
	once sync.Once

	// channels is guarded by Hub.mu.
	channels map[string]struct{}
}

// enqueue queues frame for the writer. When the queue is full the socket is
// closed and enqueue reports false.
func (s *socket) enqueue(frame []byte) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.send <- frame:
		return true
	default:
		s.close()
		return false
	}
}

// reply sends a channel-less envelope to this socket only.
func (s *socket) reply(event string, data any) {
	env, err := types.New(event, "", data)
	if err != nil {
		slog.Error("hub: build reply failed", "event", event, "err", err)
		return
	}
	frame, err := types.Encode(env)
	if err != nil {
		slog.Error("hub: encode reply failed", "event", event, "err", err)
		return
	}
	s.enqueue(frame)
}

func (s *socket) close() {
	s.once.Do(func() { close(s.done) })
}

// writePump forwards queued frames to the connection and sends periodic ping
// frames. It owns all writes and closes the connection on exit.
func (s *socket) writePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case <-s.done:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			s.conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case frame := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
