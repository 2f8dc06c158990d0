package appointment

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusScheduled AppointmentStatus = "scheduled"
	StatusCompleted AppointmentStatus = "completed"
	StatusCancelled AppointmentStatus = "cancelled"
)

// Terminal reports whether no transition leaves the status.
func (s AppointmentStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// ReasonExpired is the cancellation reason recorded by the stale sweep.
const ReasonExpired = "expired"

// Appointment binds one patient to one slot of one physician. StartAt and
// EndAt copy the slot interval so listings and overlap checks need no join.
type Appointment struct {
	ID                 uuid.UUID
	PatientID          uuid.UUID
	PhysicianID        uuid.UUID
	SlotID             uuid.UUID
	Status             AppointmentStatus
	Reason             string
	StartAt            time.Time
	EndAt              time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
	AcceptedAt         *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	CancelledBy        *uuid.UUID
	CancellationReason string
}

// Involves reports whether the user is the patient or physician of a.
func (a Appointment) Involves(id uuid.UUID) bool {
	return a.PatientID == id || a.PhysicianID == id
}

type BookRequest struct {
	PatientID   uuid.UUID
	PhysicianID uuid.UUID
	SlotID      uuid.UUID
	Reason      string
}

// Transition carries what a status change records besides the status.
type Transition struct {
	From        AppointmentStatus
	To          AppointmentStatus
	At          time.Time
	CancelledBy *uuid.UUID
	Reason      *string
}
