package message_broaker

import (
	"context"
	"errors"
	"sync"
)

var ErrBrokerClosed = errors.New("message broker is closed")

// Memory is an in-process broker for the memory storage driver. Publish never blocks:
// when no consumer keeps up the notice is dropped.
type Memory struct {
	mu     sync.Mutex
	subs   []chan []byte
	closed bool
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Publish(ctx context.Context, message []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrBrokerClosed
	}
	for _, sub := range m.subs {
		select {
		case sub <- message:
		default:
		}
	}
	return nil
}

func (m *Memory) Consume(ctx context.Context) (<-chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrBrokerClosed
	}
	ch := make(chan []byte, 100)
	m.subs = append(m.subs, ch)

	go func() {
		<-ctx.Done()
		m.unsubscribe(ch)
	}()
	return ch, nil
}

func (m *Memory) unsubscribe(ch chan []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, sub := range m.subs {
		if sub == ch {
			m.subs = append(m.subs[:i], m.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	for _, sub := range m.subs {
		close(sub)
	}
	m.subs = nil
	return nil
}
