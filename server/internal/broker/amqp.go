package broker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	defaultDialAttempts = 5
	dialRetryDelay      = 2 * time.Second
)

// AMQP fans messages out through a fanout exchange. Every subscriber gets its
// own exclusive, auto-deleted queue bound to the exchange.
type AMQP struct {
	conn     *amqp.Connection
	exchange string

	mu  sync.Mutex // guards pub
	pub *amqp.Channel
}

// NewAMQP dials url, retrying up to attempts times, and declares the exchange.
func NewAMQP(url, exchange string, attempts int) (*AMQP, error) {
	conn, err := dialAMQP(url, attempts)
	if err != nil {
		return nil, err
	}

	pub, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("broker: open amqp channel: %w", err)
	}
	if err := declareExchange(pub, exchange); err != nil {
		conn.Close()
		return nil, err
	}

	slog.Info("broker: amqp connection established", "exchange", exchange)
	return &AMQP{conn: conn, exchange: exchange, pub: pub}, nil
}

func dialAMQP(url string, attempts int) (*amqp.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		var conn *amqp.Connection
		if conn, err = amqp.Dial(url); err == nil {
			return conn, nil
		}
		if i < attempts-1 {
			slog.Warn("broker: amqp dial failed, retrying", "attempt", i+1, "err", err)
			time.Sleep(dialRetryDelay)
		}
	}
	return nil, fmt.Errorf("broker: connect to amqp after %d attempts: %w", attempts, err)
}

func declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,
		amqp.ExchangeFanout,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("broker: declare exchange %q: %w", name, err)
	}
	return nil
}

// Publish sends m to the exchange.
func (b *AMQP) Publish(ctx context.Context, m Message) error {
	body, err := encode(m)
	if err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	err = b.pub.PublishWithContext(ctx,
		b.exchange,
		"",    // routing key, ignored by fanout
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("broker: amqp publish: %w", err)
	}
	return nil
}

// Subscribe binds a private queue to the exchange and consumes it until ctx
// is cancelled.
func (b *AMQP) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("broker: open amqp channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("broker: declare queue: %w", err)
	}
	if err := ch.QueueBind(q.Name, "", b.exchange, false, nil); err != nil {
		ch.Close()
		return nil, fmt.Errorf("broker: bind queue: %w", err)
	}

	deliveries, err := ch.Consume(
		q.Name,
		"",    // consumer tag
		true,  // auto-ack
		true,  // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("broker: consume: %w", err)
	}

	out := make(chan Message, subscriberBuffer)
	go func() {
		defer close(out)
		defer ch.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				m, err := decode(d.Body)
				if err != nil {
					slog.Warn("broker: discarding amqp delivery", "err", err)
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

// Close closes the connection, ending every subscription.
func (b *AMQP) Close() error {
	return b.conn.Close()
}
