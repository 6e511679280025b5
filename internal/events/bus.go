// Package events carries internal domain events between the breaker fabric,
// the queue, and telemetry.
package events

// EventKind represents the type of internal event.
type EventKind string

const (
	EventBreakerStateChanged EventKind = "breaker_state_changed"
	EventJobCompleted        EventKind = "job_completed"
	EventJobFailed           EventKind = "job_failed"
	EventJobStalled          EventKind = "job_stalled"
	EventJobProgress         EventKind = "job_progress"
)

// Event encapsulates the minimum data consumers need; IDs only, consumers
// query full records from storage when required.
type Event struct {
	Kind    EventKind
	Service string // breaker events
	State   string // breaker events
	JobID   string // job events
	Stage   string // progress events
	Detail  string
}

// Bus is a lightweight in-process pub-sub implementation backed by a
// buffered channel.
type Bus struct {
	ch chan Event
}

// NewBus creates a bus with the given buffer size.
func NewBus(buffer int) *Bus {
	return &Bus{ch: make(chan Event, buffer)}
}

// Publish attempts to enqueue the event without blocking.
// Returns true if published, false if the buffer is full.
func (b *Bus) Publish(evt Event) bool {
	select {
	case b.ch <- evt:
		return true
	default:
		return false
	}
}

// Subscribe returns a read-only channel for consumers.
func (b *Bus) Subscribe() <-chan Event {
	return b.ch
}
