// Package channel manages the paired messaging session: a single transport
// lifecycle driven by a state machine, with lifecycle events fanned out to
// subscribers.
package channel

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/beaconhq/beacon/internal/log"
)

// EventType discriminates session lifecycle events.
type EventType string

const (
	// EventPairing carries the one-time pairing payload a client must
	// present out-of-band.
	EventPairing EventType = "pairing"

	// EventReady signals the session is paired and connected.
	EventReady EventType = "ready"

	// EventDisconnected signals the transport dropped; Reason says why.
	EventDisconnected EventType = "disconnected"

	// EventError carries a non-fatal session error.
	EventError EventType = "error"
)

// Event is a session lifecycle event delivered to subscribers.
type Event struct {
	Type    EventType `json:"type"`
	Payload string    `json:"payload,omitempty"`
	Reason  string    `json:"reason,omitempty"`
	Message string    `json:"message,omitempty"`
}

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Bus fans lifecycle events out to subscribers. Sends never block; slow
// subscribers lose events rather than stalling the session.
//
// The most recent pairing event is cached while a pairing is outstanding,
// so a subscriber attaching mid-pairing still receives the payload. The
// cache clears when the session becomes ready.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Event
	pairing     *Event // cached while awaiting pairing
	closed      bool
	done        chan struct{}
	logger      log.Logger
}

// NewBus creates an event bus. Pass nil logger for a no-op logger.
func NewBus(logger log.Logger) *Bus {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Bus{
		subscribers: make(map[string]chan Event),
		done:        make(chan struct{}),
		logger:      logger.With("component", "event_bus"),
	}
}

// Subscribe registers a subscriber. The subscription is removed when ctx
// is cancelled. A cached pairing event, if any, is delivered immediately.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, string) {
	subID := uuid.New().String()
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	b.subscribers[subID] = ch
	if b.pairing != nil {
		ch <- *b.pairing // buffered, cannot block on a fresh channel
	}
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		select {
		case <-ctx.Done():
			b.Unsubscribe(subID)
		case <-b.done:
		}
	}()

	return ch, subID
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Publish sends an event to every subscriber without blocking. Pairing
// events are cached for late subscribers; a ready event clears the cache.
//
// Sends happen under the lock so Unsubscribe cannot close a channel
// mid-publish; the non-blocking send keeps the critical section bounded.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	switch event.Type {
	case EventPairing:
		cached := event
		b.pairing = &cached
	case EventReady:
		b.pairing = nil
	}
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			// Subscriber channel full, drop the event for it.
			b.logger.Debug("dropped event for slow subscriber", "type", event.Type)
		}
	}
}

// Close closes every subscriber channel. Further publishes are no-ops and
// further subscriptions receive an already-closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for id, ch := range b.subscribers {
		delete(b.subscribers, id)
		close(ch)
	}
	b.pairing = nil
}
