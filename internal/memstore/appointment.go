package memstore

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
)

type AppointmentRepository struct {
	store *Store
}

var _ appointment.Repository = (*AppointmentRepository)(nil)

func sortAppointments(out []appointment.Appointment) {
	slices.SortFunc(out, func(a, b appointment.Appointment) int {
		if c := a.StartAt.Compare(b.StartAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID.String(), b.ID.String())
	})
}

func (r *AppointmentRepository) Create(ctx context.Context, a appointment.Appointment) error {
	r.store.with(ctx, func(d *state) {
		d.appointments[a.ID] = a
	})
	return nil
}

func (r *AppointmentRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	var (
		out appointment.Appointment
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		out, ok = d.appointments[id]
	})
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &out, nil
}

func (r *AppointmentRepository) LockAppointment(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	return r.GetAppointmentByID(ctx, id)
}

func (r *AppointmentRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, t appointment.Transition) (*appointment.Appointment, error) {
	var (
		out appointment.Appointment
		err error
	)
	r.store.with(ctx, func(d *state) {
		a, ok := d.appointments[id]
		if !ok || a.Status != t.From {
			err = appointment.ErrStatusChanged
			return
		}

		at := t.At
		a.Status = t.To
		a.UpdatedAt = at
		switch t.To {
		case appointment.StatusScheduled:
			a.AcceptedAt = &at
		case appointment.StatusCompleted:
			a.CompletedAt = &at
		case appointment.StatusCancelled:
			a.CancelledAt = &at
		}
		if t.CancelledBy != nil {
			by := *t.CancelledBy
			a.CancelledBy = &by
		}
		if t.Reason != nil {
			a.CancellationReason = *t.Reason
		}
		d.appointments[id] = a
		out = a
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LockPatient is a no-op; transactions already run one at a time.
func (r *AppointmentRepository) LockPatient(ctx context.Context, patientID uuid.UUID) error {
	return nil
}

func (r *AppointmentRepository) HasOverlapping(ctx context.Context, patientID uuid.UUID, start, end time.Time, exclude uuid.UUID) (bool, error) {
	var found bool
	r.store.with(ctx, func(d *state) {
		for _, a := range d.appointments {
			if a.PatientID != patientID || a.ID == exclude || a.Status == appointment.StatusCancelled {
				continue
			}
			if a.StartAt.Before(end) && a.EndAt.After(start) {
				found = true
				return
			}
		}
	})
	return found, nil
}

func (r *AppointmentRepository) list(ctx context.Context, match func(a appointment.Appointment) bool) []appointment.Appointment {
	out := []appointment.Appointment{}
	r.store.with(ctx, func(d *state) {
		for _, a := range d.appointments {
			if match(a) {
				out = append(out, a)
			}
		}
	})
	sortAppointments(out)
	return out
}

func (r *AppointmentRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]appointment.Appointment, error) {
	return r.list(ctx, func(a appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *AppointmentRepository) ListByPhysician(ctx context.Context, physicianID uuid.UUID) ([]appointment.Appointment, error) {
	return r.list(ctx, func(a appointment.Appointment) bool { return a.PhysicianID == physicianID }), nil
}

func (r *AppointmentRepository) FindStalePending(ctx context.Context, now time.Time, limit int) ([]appointment.Appointment, error) {
	out := r.list(ctx, func(a appointment.Appointment) bool {
		return a.Status == appointment.StatusPending && !a.StartAt.After(now)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
