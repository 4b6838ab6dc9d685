package jobs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	topics := TopicsFor("job-1")
	bus.Publish(topics.Chunk, "1")
	bus.Publish(topics.Chunk, "2")
	bus.Publish(topics.Chunk, "3")

	events := bus.Since(1)
	require.Len(t, events, 2)
	require.Equal(t, int64(2), events[0].Seq)
	require.Equal(t, int64(3), events[1].Seq)
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	topic := TopicsFor("job-1").Chunk
	bus.Publish(topic, "1")
	bus.Publish(topic, "2")
	bus.Publish(topic, "3")

	events := bus.Since(0)
	require.Len(t, events, 2)
	require.Equal(t, "2", events[0].Payload)
	require.Equal(t, "3", events[1].Payload)
}

// TestTopicString checks the per-job topic naming.
func TestTopicString(t *testing.T) {
	topics := TopicsFor("abc")
	got := []string{topics.Chunk.String(), topics.Progress.String(), topics.Final.String(), topics.Done.String()}
	require.Equal(t, []string{"translate:abc:chunk", "translate:abc:progress", "translate:abc:final", "translate:abc:done"}, got)
}

// TestEventBusDeliversInOrderPerTopic verifies routing and publish order.
func TestEventBusDeliversInOrderPerTopic(t *testing.T) {
	bus := NewEventBus(10)
	a := TopicsFor("a")
	b := TopicsFor("b")

	var got []any
	bus.Subscribe(a.Chunk, func(p any) { got = append(got, p) })

	bus.Publish(a.Chunk, "x")
	bus.Publish(b.Chunk, "ignored")
	bus.Publish(a.Done, "ignored")
	bus.Publish(a.Chunk, "y")

	require.Equal(t, []any{"x", "y"}, got)
}

// TestSubscriptionRelease verifies release stops delivery and is idempotent.
func TestSubscriptionRelease(t *testing.T) {
	bus := NewEventBus(10)
	topic := TopicsFor("job-1").Done

	calls := 0
	sub := bus.Subscribe(topic, func(any) { calls++ })
	bus.Publish(topic, nil)
	sub.Release()
	sub.Release()
	bus.Publish(topic, nil)

	require.Equal(t, 1, calls)
	require.Zero(t, bus.SubscriberCount(topic))
}

// TestEventBusMirrorRunsAfterHandlers checks the frontend mirror hook.
func TestEventBusMirrorRunsAfterHandlers(t *testing.T) {
	bus := NewEventBus(10)
	topic := TopicsFor("job-1").Final

	var order []string
	bus.Subscribe(topic, func(any) { order = append(order, "handler") })
	bus.SetMirror(func(e Event) {
		order = append(order, "mirror:"+e.Topic().String())
	})
	bus.Publish(topic, "text")

	require.Equal(t, []string{"handler", "mirror:translate:job-1:final"}, order)
}

// TestEventBusHandlerMayRelease verifies handlers can release during delivery.
func TestEventBusHandlerMayRelease(t *testing.T) {
	bus := NewEventBus(10)
	topic := TopicsFor("job-1").Done

	var sub *Subscription
	sub = bus.Subscribe(topic, func(any) { sub.Release() })
	bus.Publish(topic, nil)

	require.Zero(t, bus.SubscriberCount(topic))
}
