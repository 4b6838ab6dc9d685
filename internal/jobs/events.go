package jobs

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
)

// Kind classifies the four messages published for every translation job.
type Kind string

const (
	KindChunk    Kind = "chunk"
	KindProgress Kind = "progress"
	KindFinal    Kind = "final"
	KindDone     Kind = "done"
)

// Topic addresses one event kind of one job.
type Topic struct {
	JobID string
	Kind  Kind
}

// String renders the topic name used by the desktop frontend.
func (t Topic) String() string {
	return "translate:" + t.JobID + ":" + string(t.Kind)
}

// Topics holds every topic of one job, built once when the job is created.
type Topics struct {
	Chunk    Topic
	Progress Topic
	Final    Topic
	Done     Topic
}

// TopicsFor builds the topic set for a job id.
func TopicsFor(jobID string) Topics {
	return Topics{
		Chunk:    Topic{JobID: jobID, Kind: KindChunk},
		Progress: Topic{JobID: jobID, Kind: KindProgress},
		Final:    Topic{JobID: jobID, Kind: KindFinal},
		Done:     Topic{JobID: jobID, Kind: KindDone},
	}
}

// Event is a sequenced payload delivered to subscribers.
type Event struct {
	Seq       int64     `json:"seq"`
	Timestamp time.Time `json:"timestamp"`
	JobID     string    `json:"jobId"`
	Kind      Kind      `json:"kind"`
	Payload   any       `json:"payload,omitempty"`
}

// Topic returns the topic the event was published on.
func (e Event) Topic() Topic {
	return Topic{JobID: e.JobID, Kind: e.Kind}
}

// Handler receives the payload of one event.
type Handler func(payload any)

// Subscription is a handle to one registered handler.
type Subscription struct {
	once    sync.Once
	release func()
}

// Release unregisters the handler. Calling it more than once is harmless.
func (s *Subscription) Release() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// EventBus delivers events synchronously in publish order and keeps a bounded
// buffer of recent events for incremental reads.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	nextSubID int64
	maxEvents int
	events    []Event
	handlers  map[Topic]map[int64]Handler
	mirror    func(Event)
}

// NewEventBus creates a bus with a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
		handlers:  make(map[Topic]map[int64]Handler),
	}
}

// SetMirror installs a callback invoked after subscribers for every published event.
func (b *EventBus) SetMirror(mirror func(Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = mirror
}

// Subscribe registers handler for topic. The handler is armed when Subscribe returns.
func (b *EventBus) Subscribe(topic Topic, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSubID++
	id := b.nextSubID
	if b.handlers[topic] == nil {
		b.handlers[topic] = make(map[int64]Handler)
	}
	b.handlers[topic][id] = handler

	return &Subscription{release: func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[topic], id)
		if len(b.handlers[topic]) == 0 {
			delete(b.handlers, topic)
		}
	}}
}

// Publish records one event and delivers it to current subscribers of topic.
// Handlers run on the caller's goroutine without the bus lock held.
func (b *EventBus) Publish(topic Topic, payload any) Event {
	b.mu.Lock()
	b.nextSeq++
	event := Event{
		Seq:       b.nextSeq,
		Timestamp: time.Now().UTC(),
		JobID:     topic.JobID,
		Kind:      topic.Kind,
		Payload:   payload,
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	ids := lo.Keys(b.handlers[topic])
	slices.Sort(ids)
	handlers := make([]Handler, 0, len(ids))
	for _, id := range ids {
		handlers = append(handlers, b.handlers[topic][id])
	}
	mirror := b.mirror
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(payload)
	}
	if mirror != nil {
		mirror(event)
	}
	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.events) == 0 {
		return nil
	}

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq {
			out = append(out, event)
		}
	}
	return out
}

// SubscriberCount reports how many handlers are registered for topic.
func (b *EventBus) SubscriberCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[topic])
}
