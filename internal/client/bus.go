// Package client is the connecting side of roomcast: a reconnecting
// supervisor, a typed event bus for inbound frames and the cached view of
// rooms and friends built from them.
package client

import (
	"sync"

	"github.com/dkeye/roomcast/internal/protocol"
)

type Handler func(protocol.Frame)

type listener struct {
	id uint64
	fn Handler
}

// Bus fans inbound frames out to listeners keyed by header.
type Bus struct {
	mu        sync.RWMutex
	next      uint64
	listeners map[string][]listener
}

func NewBus() *Bus {
	return &Bus{listeners: make(map[string][]listener)}
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	bus    *Bus
	header string
	id     uint64
	once   sync.Once
}

func (b *Bus) Subscribe(header string, fn Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	b.listeners[header] = append(b.listeners[header], listener{id: b.next, fn: fn})
	return &Subscription{bus: b, header: header, id: b.next}
}

// Unsubscribe removes exactly this listener. Repeated calls are no-ops.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		b := s.bus
		b.mu.Lock()
		defer b.mu.Unlock()
		ls := b.listeners[s.header]
		for i, l := range ls {
			if l.id == s.id {
				ls = append(ls[:i:i], ls[i+1:]...)
				break
			}
		}
		if len(ls) == 0 {
			delete(b.listeners, s.header)
			return
		}
		b.listeners[s.header] = ls
	})
}

// Publish calls every listener for f.Header in registration order. Listeners
// run on the caller's goroutine and may subscribe or unsubscribe.
func (b *Bus) Publish(f protocol.Frame) int {
	b.mu.RLock()
	ls := append([]listener(nil), b.listeners[f.Header]...)
	b.mu.RUnlock()
	for _, l := range ls {
		l.fn(f)
	}
	return len(ls)
}
