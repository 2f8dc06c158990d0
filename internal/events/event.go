package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	AppointmentBooked     Type = "appointment.booked"
	AppointmentAccepted   Type = "appointment.accepted"
	AppointmentCompleted  Type = "appointment.completed"
	AppointmentCancelled  Type = "appointment.cancelled"
	DocumentSubmitted     Type = "document.submitted"
	DocumentReviewed      Type = "document.reviewed"
	PhysicianStateChanged Type = "physician.state_changed"
)

// Aggregates an event can belong to.
const (
	AggregateAppointment = "appointment"
	AggregateDocument    = "document"
	AggregatePhysician   = "physician"
)

// Event is one row of the outbox.
type Event struct {
	ID          uuid.UUID
	Aggregate   string
	AggregateID uuid.UUID
	Type        Type
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// New builds an event with a fresh id and a JSON encoded payload.
func New(typ Type, aggregate string, aggregateID uuid.UUID, payload any, at time.Time) (Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("events: marshal %s payload: %w", typ, err)
	}
	return Event{
		ID:          uuid.New(),
		Aggregate:   aggregate,
		AggregateID: aggregateID,
		Type:        typ,
		Payload:     data,
		CreatedAt:   at.UTC(),
	}, nil
}

// Appender writes an event next to the state change that produced it. When
// ctx carries a transaction the event joins it.
type Appender interface {
	Append(ctx context.Context, evt Event) error
}

// Outbox is the delivery side of the event log.
type Outbox interface {
	Appender
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
}
