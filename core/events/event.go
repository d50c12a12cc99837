package events

import (
	"sync"

	"mpcbridge/core/types"
)

// Event represents a structured record emitted by a contract.
type Event interface {
	EventType() string
}

// Typed is implemented by events that can render themselves as a flat
// attribute record.
type Typed interface {
	Event
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, indexers).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Log is the envelope the host attaches to every contract event once the
// emitting turn is finalised.
type Log struct {
	TxID      string
	ReceiptID string
	Contract  string
	Record    types.Event
}

// EventType implements Event.
func (l Log) EventType() string { return l.Record.Type }

// Attr returns a single attribute of the wrapped record.
func (l Log) Attr(key string) string { return l.Record.Attr(key) }

// Flatten converts any event into its attribute record.
func Flatten(evt Event) types.Event {
	switch e := evt.(type) {
	case Log:
		return e.Record
	case Typed:
		if rendered := e.Event(); rendered != nil {
			return *rendered
		}
	}
	return types.Event{Type: evt.EventType(), Attributes: map[string]string{}}
}

// Multi fans an event out to several emitters in order.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Capture buffers emitted events in memory.
type Capture struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Emitter.
func (c *Capture) Emit(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

// Events returns a snapshot of everything captured so far.
func (c *Capture) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

// Logs returns captured host envelopes with the given type. An empty type
// matches everything.
func (c *Capture) Logs(eventType string) []Log {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Log
	for _, evt := range c.events {
		l, ok := evt.(Log)
		if !ok {
			continue
		}
		if eventType == "" || l.Record.Type == eventType {
			out = append(out, l)
		}
	}
	return out
}

// Reset clears the buffer.
func (c *Capture) Reset() {
	c.mu.Lock()
	c.events = nil
	c.mu.Unlock()
}
