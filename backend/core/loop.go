// Package core provides the serialized event loop that owns all daemon
// state. Every mutation of the registry, the audio gateways and the sound
// engine happens inside a task run by the loop goroutine.
package core

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/b0bbywan/go-hfpd/events"
	"github.com/b0bbywan/go-hfpd/logger"
)

// ErrStopped is returned by Call once the loop has exited.
var ErrStopped = errors.New("core: loop stopped")

const eventBuffer = 256

type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool

	events chan events.Event
}

// NewLoop starts the loop goroutine. It exits when ctx is cancelled.
func NewLoop(ctx context.Context) *Loop {
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		events: make(chan events.Event, eventBuffer),
	}
	go l.run(ctx)
	return l
}

// Post queues fn for execution on the loop. It never blocks and is safe to
// call from inside a task. It reports false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Call runs fn on the loop and waits for its result. It must not be called
// from a loop task.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	if !l.Post(func() { result <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrStopped
	}
}

// Timer is a loop-bound timer; its function runs as a loop task.
type Timer struct {
	t         *time.Timer
	cancelled bool
}

// Stop prevents the timer function from running. It must be called from a
// loop task.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.cancelled = true
	t.t.Stop()
}

// AfterFunc schedules fn on the loop after d. Must be called from a loop task.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *Timer {
	timer := &Timer{}
	timer.t = time.AfterFunc(d, func() {
		l.Post(func() {
			if !timer.cancelled {
				fn()
			}
		})
	})
	return timer
}

// Emit publishes an event without blocking the loop; events are dropped
// when no one drains the channel.
func (l *Loop) Emit(typ string, data any) {
	select {
	case l.events <- events.Event{Type: typ, Data: data}:
	default:
		logger.Warn("[core] event channel full, dropping %s event", typ)
	}
}

// Events returns the channel of events emitted by loop tasks.
func (l *Loop) Events() <-chan events.Event {
	return l.events
}

// Done is closed when the loop goroutine exits.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()

			fn()

			if ctx.Err() != nil {
				return
			}
		}
	}
}
