package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("appointment not found: %w", apperr.ErrNotFound)
	// ErrStatusChanged means a conditional update found the appointment in a
	// different status than expected.
	ErrStatusChanged = fmt.Errorf("appointment status changed: %w", apperr.ErrInvalidTransition)
)

// Repository contains all DB interactions needed by the service. Calls made
// with a context carrying a transaction run inside it.
type Repository interface {
	Create(ctx context.Context, a Appointment) error
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// LockAppointment reads the appointment and holds its row until the
	// transaction ends.
	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// UpdateAppointmentStatus applies t only while the appointment is still
	// in t.From, returning ErrStatusChanged otherwise.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t Transition) (*Appointment, error)

	// LockPatient serializes bookings of one patient.
	LockPatient(ctx context.Context, patientID uuid.UUID) error
	// HasOverlapping reports whether the patient holds a non-cancelled
	// appointment intersecting [start, end), ignoring exclude.
	HasOverlapping(ctx context.Context, patientID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Appointment, error)
	ListByPhysician(ctx context.Context, physicianID uuid.UUID) ([]Appointment, error)

	// FindStalePending returns pending appointments whose slot started before now.
	FindStalePending(ctx context.Context, now time.Time, limit int) ([]Appointment, error)
}
