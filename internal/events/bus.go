// Package events provides the in-process publish side of the analytics
// event stream (spec §4.7 step 7): the search executor fires one
// AnalyticsEvent per query, fire-and-forget, for an out-of-scope metrics
// rollup pipeline to subscribe to.
package events

import "github.com/flapjack/flapjack/internal/model"

// AnalyticsEvent is emitted once per search request, carrying enough
// context for a downstream rollup to attribute clicks/conversions back to
// the query and experiment arm that served it.
type AnalyticsEvent = model.AnalyticsEvent

// Bus is a lightweight in-process pub-sub implementation backed by a
// buffered channel, non-blocking on publish so a slow or absent
// subscriber never stalls the search path that emits events.
type Bus struct {
	ch chan AnalyticsEvent
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan AnalyticsEvent, buffer)}
}

// Publish attempts to enqueue evt without blocking. Returns true if
// published, false if the buffer is full and the event was dropped.
func (b *Bus) Publish(evt AnalyticsEvent) bool {
	select {
	case b.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe returns a read-only channel for consumers.
func (b *Bus) Subscribe() <-chan AnalyticsEvent {
	return b.ch
}

var defaultBus *Bus

// InitDefault initializes the package-level singleton used by the search
// executor and any in-process analytics consumer.
func InitDefault(buffer int) {
	defaultBus = NewBus(buffer)
}

// Default returns the global bus (nil if not initialized).
func Default() *Bus {
	return defaultBus
}

// Publish enqueues via the default bus if initialized.
func Publish(evt AnalyticsEvent) bool {
	if defaultBus == nil {
		return false
	}
	return defaultBus.Publish(evt)
}

// Subscribe returns the channel from the default bus if initialized,
// otherwise a closed channel so callers can range over it safely.
func Subscribe() <-chan AnalyticsEvent {
	if defaultBus == nil {
		c := make(chan AnalyticsEvent)
		close(c)
		return c
	}
	return defaultBus.Subscribe()
}
