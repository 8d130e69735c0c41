package backend

import (
	"context"
	"sync"

	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

// Broadcaster fans out events from a single upstream channel to all subscribers.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan events.Event]func(events.Event) bool
}

// NewBroadcaster starts a broadcaster that reads from upstream and fans out to
// all subscribers. It stops when ctx is cancelled or upstream is closed.
func NewBroadcaster(ctx context.Context, upstream <-chan events.Event) *Broadcaster {
	b := &Broadcaster{
		clients: make(map[chan events.Event]func(events.Event) bool),
	}
	go b.run(ctx, upstream)
	return b
}

// Subscribe registers a new subscriber and returns its dedicated channel (buffered, size 32).
func (b *Broadcaster) Subscribe() chan events.Event {
	return b.SubscribeFunc(nil)
}

// SubscribeFunc registers a subscriber receiving only the events passing
// filter. A nil filter passes every event.
func (b *Broadcaster) SubscribeFunc(filter func(events.Event) bool) chan events.Event {
	ch := make(chan events.Event, 32)
	b.mu.Lock()
	b.clients[ch] = filter
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan events.Event) {
	b.mu.Lock()
	_, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (b *Broadcaster) broadcast(e events.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, filter := range b.clients {
		if filter != nil && !filter(e) {
			continue
		}
		select {
		case ch <- e:
		default:
			logger.Warn("[sse] client channel full, dropping %s event", e.Type)
		}
	}
}

func (b *Broadcaster) run(ctx context.Context, upstream <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-upstream:
			if !ok {
				return
			}
			logger.Debug("[backend] event %s", e.Type)
			b.broadcast(e)
		}
	}
}
