// Package events allows subscribers to receive the trace events produced by
// the faucet as they happen.
package events

import (
	"fmt"
	"sync"
	"time"
)

// messageBuffer is the number of events held for a subscriber that is not
// ready to receive. A websocket send could take long.
const messageBuffer = 100

// Event is a single message delivered to subscribers.
type Event struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// Events maintains a mapping of subscriber id to channel so goroutines
// can register and receive events.
type Events struct {
	mu      sync.RWMutex
	m       map[string]chan Event
	dropped uint64
}

// New constructs an events value for registering and receiving events.
func New() *Events {
	return &Events{
		m: make(map[string]chan Event),
	}
}

// Shutdown closes and removes all channels that were provided by
// the call to Acquire.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire takes a unique id and returns a channel that can be used
// to receive events.
func (evt *Events) Acquire(id string) <-chan Event {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		ch = make(chan Event, messageBuffer)
		evt.m[id] = ch
	}

	return ch
}

// Release closes and removes the channel that was provided by
// the call to Acquire.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send signals a message to every registered channel. Send will not block
// waiting for a receiver on any given channel, the message is dropped for
// that subscriber instead.
func (evt *Events) Send(s string) {
	ev := Event{
		Time:    time.Now().UTC(),
		Message: s,
	}

	evt.mu.Lock()
	defer evt.mu.Unlock()

	for _, ch := range evt.m {
		select {
		case ch <- ev:
		default:
			evt.dropped++
		}
	}
}

// Dropped returns the number of messages that could not be delivered.
func (evt *Events) Dropped() uint64 {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return evt.dropped
}
