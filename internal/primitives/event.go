// Event provides the event primitive for state machine dispatch.
//
// Events are identified for transition matching by Name only. Conditions
// carries the (name, value, duration) snapshots recorded when the event was
// synthesized; externally posted events usually carry none.
//
// # Immutability
//
// Event fields are exported for convenience in read-only contexts, but consumers MUST
// NOT modify them after the event has been handed to an engine: the same *Event
// is passed to every callback of one dispatch cycle.
//
// Example:
//
//	evt := NewEvent("TURN_ON")
//	evt = NewEvent("OVERHEAT", ConditionInfo{Name: "temperature", Value: 95})
package primitives

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID         uuid.UUID       `json:"id" yaml:"id"`
	Name       string          `json:"name" yaml:"name"`
	Data       any             `json:"data,omitempty" yaml:"data,omitempty"`
	Conditions []ConditionInfo `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Time       time.Time       `json:"time" yaml:"time"`
}

// NewEvent creates a new Event with a fresh ID.
func NewEvent(name string, conditions ...ConditionInfo) *Event {
	return &Event{
		ID:         uuid.New(),
		Name:       name,
		Conditions: conditions,
		Time:       time.Now(),
	}
}

// NewEventWithData creates a new Event carrying an application payload.
func NewEventWithData(name string, data any) *Event {
	e := NewEvent(name)
	e.Data = data
	return e
}

// ConditionValue returns the snapshot value recorded for the named
// condition, or 0 if the event carries none.
func (e *Event) ConditionValue(name string) int {
	for _, c := range e.Conditions {
		if c.Name == name {
			return c.Value
		}
	}
	return 0
}

// IsInternal reports whether e is the generic condition-change event.
func (e *Event) IsInternal() bool {
	return e.Name == InternalEvent
}

// String renders the event as NAME [cond=value (sustain N ms), ...].
func (e *Event) String() string {
	if e == nil {
		return "<nil>"
	}
	if len(e.Conditions) == 0 {
		return e.Name
	}
	var b strings.Builder
	b.WriteString(e.Name)
	b.WriteString(" [")
	for i, c := range e.Conditions {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte('=')
		b.WriteString(strconv.Itoa(c.Value))
		if c.Duration > 0 {
			b.WriteString(" (sustain ")
			b.WriteString(strconv.FormatInt(c.Duration.Milliseconds(), 10))
			b.WriteString(" ms)")
		}
	}
	b.WriteByte(']')
	return b.String()
}
