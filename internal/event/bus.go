// Package event provides the control's pub/sub bus using watermill.
package event

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drecchia/maplibre-layerlibre/internal/logging"
)

// Topic names the public event catalogue. The strings are wire-visible
// (SSE event names, persisted subscriptions) and must not change.
type Topic string

const (
	TopicBaseChange     Topic = "basechange"
	TopicOverlayChange  Topic = "overlaychange"
	TopicGroupChange    Topic = "overlaygroupchange"
	TopicChange         Topic = "change"
	TopicLoading        Topic = "loading"
	TopicSuccess        Topic = "success"
	TopicError          Topic = "error"
	TopicStyleLoad      Topic = "styleload"
	TopicViewportChange Topic = "viewportchange"
	TopicZoomFilter     Topic = "zoomfilter"
	TopicMemoryCleared  Topic = "memorycleared"
)

// streamTopic is the single watermill channel all events are mirrored to.
const streamTopic = "layerlibre.events"

// Event pairs a topic with its payload struct from types.go.
type Event struct {
	Topic   Topic `json:"topic"`
	Payload any   `json:"payload"`
}

// Handler receives events. Dispatch is synchronous; handlers must not block.
type Handler func(Event)

type subscriberEntry struct {
	id uint64
	fn Handler
}

// Bus is a synchronous in-process pub/sub. Topic subscribers and global
// subscribers are called inline in publish order; a panicking handler is
// isolated so the remaining handlers still run. Every event is also
// mirrored into a watermill gochannel for streaming consumers.
type Bus struct {
	mu          sync.RWMutex
	pubsub      *gochannel.GoChannel
	subscribers map[Topic][]subscriberEntry
	global      []subscriberEntry
	nextID      uint64
	closed      bool
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 100},
			watermill.NopLogger{},
		),
		subscribers: make(map[Topic][]subscriberEntry),
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers a handler for one topic and returns its unsubscribe
// function.
func (b *Bus) Subscribe(topic Topic, fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.subscribers[topic] = append(b.subscribers[topic], subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribe(topic, id) }
}

// SubscribeAll registers a handler for every topic, umbrella included.
func (b *Bus) SubscribeAll(fn Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return func() {}
	}

	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})

	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(topic Topic, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[topic]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[topic] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish dispatches the event synchronously, then fires the umbrella
// change event alongside it, then mirrors both to the stream.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers := b.collect(e.Topic)
	b.mu.RUnlock()

	for _, fn := range handlers {
		dispatch(fn, e)
	}
	b.mirror(e)

	if e.Topic == TopicChange {
		return
	}

	umbrella := Event{Topic: TopicChange, Payload: ChangeData{Type: e.Topic, Payload: e.Payload}}
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	handlers = b.collect(TopicChange)
	b.mu.RUnlock()

	for _, fn := range handlers {
		dispatch(fn, umbrella)
	}
	b.mirror(umbrella)
}

// collect gathers topic plus global handlers under the read lock.
func (b *Bus) collect(topic Topic) []Handler {
	handlers := make([]Handler, 0, len(b.subscribers[topic])+len(b.global))
	for _, entry := range b.subscribers[topic] {
		handlers = append(handlers, entry.fn)
	}
	for _, entry := range b.global {
		handlers = append(handlers, entry.fn)
	}
	return handlers
}

// dispatch isolates handler panics so one bad subscriber cannot starve the
// rest of the dispatch order.
func dispatch(fn Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().
				Str("topic", string(e.Topic)).
				Interface("panic", r).
				Msg("event handler panicked")
		}
	}()
	fn(e)
}

// mirror forwards the event into the watermill channel for Stream readers.
func (b *Bus) mirror(e Event) {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		logging.Error().Err(err).Str("topic", string(e.Topic)).Msg("event payload not marshalable")
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	msg.Metadata.Set("topic", string(e.Topic))
	if err := b.pubsub.Publish(streamTopic, msg); err != nil {
		logging.Error().Err(err).Str("topic", string(e.Topic)).Msg("event stream publish failed")
	}
}

// Stream subscribes to the mirrored event flow. Each message's payload is
// the JSON-encoded event payload and its "topic" metadata names the topic.
// The subscription ends when ctx is cancelled or the bus closes.
func (b *Bus) Stream(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, streamTopic)
}

// Close drops all subscribers and shuts the stream down.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.subscribers = make(map[Topic][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()

	return b.pubsub.Close()
}
