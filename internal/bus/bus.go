// Package bus is the per-activity publish/subscribe registry feeding the live
// streams. The engine publishes after every successful mutation; each SSE
// handler holds one subscription and drains its channel.
package bus

import (
	"sync"
	"time"
)

// DefaultBuffer is how many undelivered events a subscriber may lag behind
// before it is treated as dead and dropped.
const DefaultBuffer = 64

type Event struct {
	ActivityID string    `json:"activity_id"`
	Type       string    `json:"type"`
	Payload    any       `json:"payload,omitempty"`
	At         time.Time `json:"at"`
}

type Subscription struct {
	// C delivers events in publish order. It is closed on Unsubscribe or
	// when the bus evicts the subscriber.
	C <-chan Event

	bus        *Bus
	activityID string
	ch         chan Event
	closed     bool
}

// Unsubscribe removes the subscription and closes C. Safe to call more than
// once; callers defer it from the streaming handler.
func (s *Subscription) Unsubscribe() {
	s.bus.remove(s.activityID, s, true)
}

// Bus multiplexes domain events to any number of subscribers per activity.
type Bus struct {
	mu   sync.Mutex
	subs map[string][]*Subscription
}

func New() *Bus {
	return &Bus{subs: make(map[string][]*Subscription)}
}

// Subscribe registers a listener for one activity's events.
func (b *Bus) Subscribe(activityID string) *Subscription {
	sub := &Subscription{
		bus:        b,
		activityID: activityID,
		ch:         make(chan Event, DefaultBuffer),
	}
	sub.C = sub.ch

	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[activityID] = append(b.subs[activityID], sub)
	return sub
}

// Publish delivers the event to every current subscriber of the activity.
// Sends happen under the bus lock so subscribers observe events in publish
// order. A subscriber whose buffer is full cannot keep up with a live event
// stream and is evicted rather than allowed to stall the publisher.
func (b *Bus) Publish(activityID, eventType string, payload any) {
	ev := Event{
		ActivityID: activityID,
		Type:       eventType,
		Payload:    payload,
		At:         time.Now(),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	var dead []*Subscription
	for _, sub := range b.subs[activityID] {
		select {
		case sub.ch <- ev:
		default:
			dead = append(dead, sub)
		}
	}
	for _, sub := range dead {
		b.removeLocked(activityID, sub)
	}
}

// SubscriberCount reports how many live subscriptions an activity has.
func (b *Bus) SubscriberCount(activityID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[activityID])
}

func (b *Bus) remove(activityID string, sub *Subscription, lock bool) {
	if lock {
		b.mu.Lock()
		defer b.mu.Unlock()
	}
	b.removeLocked(activityID, sub)
}

func (b *Bus) removeLocked(activityID string, sub *Subscription) {
	if sub.closed {
		return
	}
	subs := b.subs[activityID]
	for i, s := range subs {
		if s == sub {
			b.subs[activityID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[activityID]) == 0 {
		delete(b.subs, activityID)
	}
	sub.closed = true
	close(sub.ch)
}
