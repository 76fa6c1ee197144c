package player

import "github.com/kunquat/kunquat-go/pkg/event"

// BufferedEvent is one (channel, event_name, argument) triple recorded by
// the player, per the event-buffer external protocol.
type BufferedEvent struct {
	Channel int
	Name    string
	Arg     event.Value
}

// EventBuffer is the host-thread-only, bounded record of events produced
// during a render call. Once full it enters skipping mode: side effects
// still apply but new events are not recorded until the buffer is drained.
type EventBuffer struct {
	cap      int
	events   []BufferedEvent
	returned int
	skipping bool
}

// NewEventBuffer creates a buffer with the given slot capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &EventBuffer{cap: capacity}
}

// Clear empties the buffer and its skipping state; called at the start of
// each play() call.
func (b *EventBuffer) Clear() {
	b.events = nil
	b.returned = 0
	b.skipping = false
}

// Append records an event, returning false (and entering skipping mode) if
// the buffer is already full.
func (b *EventBuffer) Append(ch int, name string, arg event.Value) bool {
	if len(b.events) >= b.cap {
		b.skipping = true
		return false
	}
	b.events = append(b.events, BufferedEvent{Channel: ch, Name: name, Arg: arg})
	return true
}

// IsFull reports whether the buffer has reached capacity.
func (b *EventBuffer) IsFull() bool { return len(b.events) >= b.cap }

// IsSkipping reports whether the buffer started skipping during the current
// render call.
func (b *EventBuffer) IsSkipping() bool { return b.skipping }

// Take returns the events recorded since the last Take call, advancing the
// returned-up-to cursor. A second call on the same block yields only
// events appended since, i.e. the continuation.
func (b *EventBuffer) Take() []BufferedEvent {
	out := b.events[b.returned:]
	b.returned = len(b.events)
	return out
}
