package bus

import (
	"context"
	"sync"
	"time"
)

// Memory fans events out to in-process subscriber channels. A slow
// subscriber drops events rather than blocking the publisher.
type Memory struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewMemory creates an in-process bus.
func NewMemory() *Memory {
	return &Memory{}
}

// Subscribe returns a channel receiving future events.
func (m *Memory) Subscribe(buffer int) <-chan Event {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		close(ch)
		return ch
	}
	m.subs = append(m.subs, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (m *Memory) Publish(_ context.Context, ev Event) error {
	if ev.At == 0 {
		ev.At = time.Now().Unix()
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil
	}
	for _, ch := range m.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	return nil
}

// Close closes every subscriber channel.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	for _, ch := range m.subs {
		close(ch)
	}
	m.subs = nil
	return nil
}

// ensure interface compliance at compile time
var _ Bus = (*Memory)(nil)
