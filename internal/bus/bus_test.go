package bus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(sub *Subscription) []Event {
	var out []Event
	for {
		select {
		case ev, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestPublishReachesAllSubscribers(t *testing.T) {
	b := New()
	s1 := b.Subscribe("X")
	s2 := b.Subscribe("X")

	b.Publish("X", "checkin", map[string]string{"name": "Alice"})

	for _, sub := range []*Subscription{s1, s2} {
		evs := drain(sub)
		require.Len(t, evs, 1)
		assert.Equal(t, "checkin", evs[0].Type)
		assert.Equal(t, map[string]string{"name": "Alice"}, evs[0].Payload)
	}
}

func TestDeliveryPreservesPublishOrder(t *testing.T) {
	b := New()
	sub := b.Subscribe("X")

	for i := 0; i < 10; i++ {
		b.Publish("X", fmt.Sprintf("ev-%d", i), nil)
	}
	evs := drain(sub)
	require.Len(t, evs, 10)
	for i, ev := range evs {
		assert.Equal(t, fmt.Sprintf("ev-%d", i), ev.Type)
	}
}

func TestCrossActivityIsolation(t *testing.T) {
	b := New()
	sx := b.Subscribe("X")
	sy := b.Subscribe("Y")

	b.Publish("X", "vote", nil)

	assert.Len(t, drain(sx), 1)
	assert.Empty(t, drain(sy))
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := New()
	sub := b.Subscribe("X")
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	b.Publish("X", "vote", nil)

	_, ok := <-sub.C
	assert.False(t, ok, "channel should be closed")
	assert.Equal(t, 0, b.SubscriberCount("X"))
}

func TestSlowSubscriberEvictedOthersUnaffected(t *testing.T) {
	b := New()
	slow := b.Subscribe("X")
	fast := b.Subscribe("X")

	// Overflow the slow subscriber without draining it.
	for i := 0; i < DefaultBuffer+1; i++ {
		b.Publish("X", "tick", nil)
		drain(fast)
	}

	assert.Equal(t, 1, b.SubscriberCount("X"))
	evs := drain(slow)
	assert.Len(t, evs, DefaultBuffer)
	_, ok := <-slow.ch
	assert.False(t, ok, "evicted subscriber channel should be closed")

	// The surviving subscriber still receives new events.
	b.Publish("X", "after", nil)
	after := drain(fast)
	require.Len(t, after, 1)
	assert.Equal(t, "after", after[0].Type)
}
