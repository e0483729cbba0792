// Package events provides a publish/subscribe bus for the intent
// service's operational events. Events flow from components
// (transcription listener, snapshot mirror, pipeline) to subscribers
// (readiness gate, log tail, future metrics collector). The bus is
// nil-safe: calling Publish on a nil *Bus is a no-op, so components do
// not need guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourcePipeline identifies events from the intent pipeline.
	SourcePipeline = "pipeline"
	// SourceSnapshot identifies events from the snapshot mirror.
	SourceSnapshot = "snapshot"
	// SourceBroker identifies events from the broker connection.
	SourceBroker = "broker"
)

// Kind constants describe the type of event within a source.
const (
	// KindTranscription signals an incoming voice transcription.
	// Data: text_len.
	KindTranscription = "transcription"
	// KindIntentParsed signals a transcription matched an intent.
	// Data: intent, keyword.
	KindIntentParsed = "intent_parsed"
	// KindIntentUnknown signals a transcription matched nothing.
	// Data: text_len.
	KindIntentUnknown = "intent_unknown"
	// KindTargetResolved signals a component was resolved for an
	// intent. Data: device, type, id, pass.
	KindTargetResolved = "target_resolved"
	// KindTargetAmbiguous signals resolution was abandoned because
	// two candidates scored identically. Data: score.
	KindTargetAmbiguous = "target_ambiguous"
	// KindCommandPublished signals a command went out to the router.
	// Data: device, type, id.
	KindCommandPublished = "command_published"

	// KindSnapshotRequested signals a full dump was requested from
	// the router, on connect or reconnect.
	KindSnapshotRequested = "snapshot_requested"
	// KindSnapshotRow signals one dump row was ingested.
	// Data: table, device.
	KindSnapshotRow = "snapshot_row"
	// KindSnapshotUsable signals the mirror saw its first rows and
	// commands may now resolve against it.
	KindSnapshotUsable = "snapshot_usable"

	// KindConnectionUp signals the broker session is established.
	KindConnectionUp = "connection_up"
	// KindConnectionDown signals the broker session dropped.
	// Data: reason.
	KindConnectionDown = "connection_down"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs. This allows
	// Unsubscribe to accept <-chan Event (the caller's view) without
	// an illegal type conversion.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop the event rather than block.
		}
	}
}

// Emit is shorthand for Publish with an implicit timestamp.
func (b *Bus) Emit(source, kind string, data map[string]any) {
	b.Publish(Event{Source: source, Kind: kind, Data: data})
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
// bufSize controls the channel buffer.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
