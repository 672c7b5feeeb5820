// Package events defines the domain-event contract shared by all
// aggregates.
package events

import "time"

// DomainEvent is a fact an aggregate records when its state changes.
type DomainEvent interface {
	EventName() string
	AggregateID() string
	OccurredAt() time.Time
}

// EventRecorder buffers events on an aggregate until a handler drains
// them into the outbox. Embed it in aggregate structs.
type EventRecorder struct {
	pending []DomainEvent
}

func (r *EventRecorder) Record(event DomainEvent) {
	if event == nil {
		return
	}
	r.pending = append(r.pending, event)
}

// PendingEvents returns a copy; callers must ClearEvents after draining.
func (r *EventRecorder) PendingEvents() []DomainEvent {
	if len(r.pending) == 0 {
		return nil
	}
	out := make([]DomainEvent, len(r.pending))
	copy(out, r.pending)
	return out
}

func (r *EventRecorder) ClearEvents() {
	r.pending = nil
}

// BaseEvent supplies the common fields; concrete events embed it.
type BaseEvent struct {
	Name      string
	Aggregate string
	Time      time.Time
}

func (e BaseEvent) EventName() string    { return e.Name }
func (e BaseEvent) AggregateID() string  { return e.Aggregate }
func (e BaseEvent) OccurredAt() time.Time { return e.Time }
