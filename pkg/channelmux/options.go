package channelmux

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

// Default values applied by New when the corresponding option is zero.
const (
	DefaultKeepaliveInterval = 10 * time.Second
	DefaultBufferLimit       = 1024
	DefaultAuthTimeout       = 10 * time.Second
	DefaultHandshakeTimeout  = 10 * time.Second
)

// Options configures a Connection. Host and AuthEndpoint are the protocol
// settings; everything else tunes the Go runtime side.
type Options struct {
	// Host is the websocket URL of the peer (ws:// or wss://).
	Host string

	// AuthEndpoint receives POST {socket_id, channel_name} for protected channels.
	AuthEndpoint string

	// Header is sent with the websocket handshake request.
	Header http.Header

	// KeepaliveInterval is the period of the ping event. Default 10s.
	KeepaliveInterval time.Duration

	// BufferLimit caps the number of envelopes held while the transport is not
	// writable. When the buffer is full the newest envelope is dropped.
	// Zero means DefaultBufferLimit; a negative value disables the cap.
	BufferLimit int

	// Logger receives connection logs. Defaults to slog.Default().
	Logger *slog.Logger

	// Registerer receives the connection metrics. A private registry is used
	// when nil.
	Registerer prometheus.Registerer

	// HTTPClient performs authorization requests. Used by Dial only.
	HTTPClient *http.Client

	// Dialer opens the websocket. Used by Dial only.
	Dialer *websocket.Dialer
}

func (o Options) withDefaults() Options {
	if o.KeepaliveInterval <= 0 {
		o.KeepaliveInterval = DefaultKeepaliveInterval
	}
	if o.BufferLimit == 0 {
		o.BufferLimit = DefaultBufferLimit
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Registerer == nil {
		o.Registerer = prometheus.NewRegistry()
	}
	return o
}

// Validate checks that Host and AuthEndpoint are usable URLs.
func (o Options) Validate() error {
	if o.Host == "" {
		return fmt.Errorf("channelmux: host is required")
	}
	u, err := url.Parse(o.Host)
	if err != nil {
		return fmt.Errorf("channelmux: parse host %q: %w", o.Host, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("channelmux: host %q: scheme must be ws or wss", o.Host)
	}
	if o.AuthEndpoint == "" {
		return fmt.Errorf("channelmux: auth endpoint is required")
	}
	a, err := url.Parse(o.AuthEndpoint)
	if err != nil {
		return fmt.Errorf("channelmux: parse auth endpoint %q: %w", o.AuthEndpoint, err)
	}
	if a.Scheme != "http" && a.Scheme != "https" {
		return fmt.Errorf("channelmux: auth endpoint %q: scheme must be http or https", o.AuthEndpoint)
	}
	return nil
}
