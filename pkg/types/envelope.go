package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Reserved event names.
const (
	EventWhoami            = "whoami"
	EventPing              = "ping"
	EventSubscribe         = "subscribe"
	EventUnsubscribe       = "unsubscribe"
	EventSubscriptionError = "subscription_error"
)

// Channel name prefixes that require an authorization exchange.
const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

// ErrNoEvent is returned by Decode for a well-formed object without an event name.
var ErrNoEvent = errors.New("envelope: missing event")

// Envelope is the unit exchanged over the wire in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// WhoamiData is the payload of the server's whoami reply.
type WhoamiData struct {
	SocketID string `json:"socket_id"`
}

// SubscribeData is the payload of subscribe and unsubscribe requests.
// Auth is only set for protected channels.
type SubscribeData struct {
	Channel string `json:"channel"`
	Auth    string `json:"auth,omitempty"`
}

// New builds an Envelope, marshalling data into the payload.
// A nil data leaves the payload empty.
func New(event, channel string, data any) (Envelope, error) {
	env := Envelope{Event: event, Channel: channel}
	if data == nil {
		return env, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("envelope %q: marshal data: %w", event, err)
	}
	env.Data = raw
	return env, nil
}

// Encode serializes env into a text frame.
func Encode(env Envelope) ([]byte, error) {
	if env.Event == "" {
		return nil, ErrNoEvent
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("envelope %q: encode: %w", env.Event, err)
	}
	return b, nil
}

// Decode parses a text frame into an Envelope. A JSON "null" data field is
// normalised to an empty payload.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrNoEvent
	}
	if bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		env.Data = nil
	}
	return env, nil
}

// UnmarshalData decodes the envelope payload into v.
func (e Envelope) UnmarshalData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("envelope %q: empty data", e.Event)
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("envelope %q: decode data: %w", e.Event, err)
	}
	return nil
}

// RequiresAuth reports whether subscribing to the named channel needs an
// authorization token.
func RequiresAuth(channel string) bool {
	return strings.HasPrefix(channel, PrivatePrefix) || strings.HasPrefix(channel, PresencePrefix)
}
