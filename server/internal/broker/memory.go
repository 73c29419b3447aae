package broker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("broker: closed")

// Memory is an in-process Broker for a single server instance.
type Memory struct {
	mu     sync.RWMutex
	subs   map[chan Message]struct{}
	closed bool
}

// NewMemory returns an empty in-process broker.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan Message]struct{})}
}

// Publish delivers m to every subscriber. A subscriber whose stream is full
// misses the message rather than stalling the publisher.
func (b *Memory) Publish(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	for ch := range b.subs {
		select {
		case ch <- m:
		default:
			slog.Warn("broker: subscriber full, message dropped", "channel", m.Channel, "event", m.Event)
		}
	}
	return nil
}

// Subscribe registers a new stream that lives until ctx is cancelled.
func (b *Memory) Subscribe(ctx context.Context) (<-chan Message, error) {
	ch := make(chan Message, subscriberBuffer)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.remove(ch)
	}()
	return ch, nil
}

// Close ends every subscription.
func (b *Memory) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}

func (b *Memory) remove(ch chan Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}
