package engine

import (
	"sync"
	"sync/atomic"
)

// observerBuffer is the bounded queue depth per observer. A slow observer
// overflows and drops frames; the turn is never stalled by a send.
const observerBuffer = 64

// Observer receives a turn's events over a bounded channel. The persisted
// transcript, not the observer stream, is the canonical record.
type Observer struct {
	events  chan Event
	once    sync.Once
	dropped atomic.Int64
}

// NewObserver creates an observer with the default buffer.
func NewObserver() *Observer {
	return &Observer{events: make(chan Event, observerBuffer)}
}

// Send enqueues an event without blocking. Returns false when the frame
// was dropped because the observer is full or closed.
func (o *Observer) Send(ev Event) bool {
	if o == nil {
		return false
	}
	defer func() {
		// Sending on a closed channel panics; a disconnected observer is
		// indistinguishable from a slow one, so the frame just drops.
		if recover() != nil {
			o.dropped.Add(1)
		}
	}()
	select {
	case o.events <- ev:
		return true
	default:
		o.dropped.Add(1)
		return false
	}
}

// Events returns the receive side of the observer queue.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Close ends delivery. Safe to call more than once.
func (o *Observer) Close() {
	o.once.Do(func() { close(o.events) })
}

// Dropped reports how many frames were discarded.
func (o *Observer) Dropped() int64 {
	return o.dropped.Load()
}
