package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis fans messages out through a redis pub/sub channel, so every server
// instance subscribed to the same topic sees every publish.
type Redis struct {
	client *redis.Client
	topic  string
}

// NewRedis connects to the redis server at url (redis://...) and verifies the
// connection with a PING.
func NewRedis(ctx context.Context, url, topic string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("broker: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("broker: connect to redis: %w", err)
	}

	slog.Info("broker: redis connection established", "addr", opts.Addr, "topic", topic)
	return &Redis{client: client, topic: topic}, nil
}

// Publish sends m to the topic.
func (b *Redis) Publish(ctx context.Context, m Message) error {
	payload, err := encode(m)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.topic, payload).Err(); err != nil {
		return fmt.Errorf("broker: redis publish: %w", err)
	}
	return nil
}

// Subscribe listens on the topic until ctx is cancelled.
func (b *Redis) Subscribe(ctx context.Context) (<-chan Message, error) {
	pubsub := b.client.Subscribe(ctx, b.topic)
	// Wait for the subscription confirmation so no publish is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("broker: redis subscribe: %w", err)
	}

	out := make(chan Message, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				m, err := decode([]byte(msg.Payload))
				if err != nil {
					slog.Warn("broker: discarding redis message", "err", err)
					continue
				}
				select {
				case out <- m:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the redis client, ending every subscription.
func (b *Redis) Close() error {
	return b.client.Close()
}
