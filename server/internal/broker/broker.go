package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/obsidianstack/channelmux/server/internal/config"
)

// Message is one event published to a channel.
type Message struct {
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	Data    json.RawMessage `json:"data,omitempty"`

	// Origin is the socket that produced a client event. The hub does not echo
	// the event back to it. Empty for server-side publishes.
	Origin string `json:"origin,omitempty"`
}

// Broker fans published messages out to every subscriber, possibly across
// server instances.
type Broker interface {
	// Publish hands m to the broker. It returns once the broker accepted it.
	Publish(ctx context.Context, m Message) error

	// Subscribe returns a stream of every message published after the call.
	// The stream is closed when ctx is cancelled or the broker is closed.
	Subscribe(ctx context.Context) (<-chan Message, error)

	Close() error
}

// subscriberBuffer is the depth of each subscription stream.
const subscriberBuffer = 256

// New returns the Broker selected by cfg.Backend.
func New(ctx context.Context, cfg config.BrokerConfig) (Broker, error) {
	switch cfg.Backend {
	case "memory", "":
		return NewMemory(), nil
	case "redis":
		return NewRedis(ctx, cfg.URL(), cfg.Topic)
	case "amqp":
		return NewAMQP(cfg.URL(), cfg.Topic, defaultDialAttempts)
	default:
		return nil, fmt.Errorf("broker: unknown backend %q", cfg.Backend)
	}
}

func encode(m Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("broker: encode message: %w", err)
	}
	return b, nil
}

func decode(b []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return Message{}, fmt.Errorf("broker: decode message: %w", err)
	}
	if m.Channel == "" || m.Event == "" {
		return Message{}, fmt.Errorf("broker: message missing channel or event")
	}
	return m, nil
}
