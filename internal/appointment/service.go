package appointment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/events"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var tracer = otel.Tracer("telemed.internal.appointment")

// SlotReserver is the part of the slot registry bookings consume.
type SlotReserver interface {
	GetSlot(ctx context.Context, id uuid.UUID) (*slot.Slot, error)
	Reserve(ctx context.Context, slotID, physicianID uuid.UUID) (*slot.Slot, error)
	Release(ctx context.Context, slotID uuid.UUID) (bool, error)
}

// ApprovalChecker reports whether a physician may receive bookings.
type ApprovalChecker interface {
	IsApproved(ctx context.Context, physicianID uuid.UUID) (bool, error)
}

type Service struct {
	repo                Repository
	tx                  db.TxRunner
	slots               SlotReserver
	approval            ApprovalChecker
	events              events.Appender
	initial             AppointmentStatus
	completeFromPending bool
	log                 *logger.Logger
	metrics             *metrics.SchedulingMetrics
	now                 func() time.Time
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Service) { s.log = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithDirectBooking makes new bookings start as scheduled instead of pending.
func WithDirectBooking(direct bool) Option {
	return func(s *Service) {
		if direct {
			s.initial = StatusScheduled
		} else {
			s.initial = StatusPending
		}
	}
}

// WithCompleteFromPending allows completing an appointment that was never accepted.
func WithCompleteFromPending(enabled bool) Option {
	return func(s *Service) { s.completeFromPending = enabled }
}

func NewService(repo Repository, tx db.TxRunner, slots SlotReserver, approval ApprovalChecker, appender events.Appender, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		tx:       tx,
		slots:    slots,
		approval: approval,
		events:   appender,
		initial:  StatusPending,
		log:      logger.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) allowed(from, to AppointmentStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusScheduled || to == StatusCancelled ||
			(to == StatusCompleted && s.completeFromPending)
	case StatusScheduled:
		return to == StatusCompleted || to == StatusCancelled
	}
	return false
}

// Book reserves the slot and creates the appointment in one transaction.
// Of concurrent bookings for the same slot exactly one succeeds; the others
// fail with apperr.ErrSlotNoLongerAvailable and leave nothing behind.
func (s *Service) Book(ctx context.Context, caller auth.Caller, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Book")
	defer span.End()
	span.SetAttributes(
		attribute.String("slot.id", req.SlotID.String()),
		attribute.String("physician.id", req.PhysicianID.String()),
		attribute.String("patient.id", req.PatientID.String()),
	)

	appt, err := s.book(ctx, caller, req)
	s.metrics.ObserveBooking(bookingOutcome(err))
	if err != nil {
		span.RecordError(err)
		entry := s.log.WithFields(logrus.Fields{
			"slot_id":      req.SlotID,
			"physician_id": req.PhysicianID,
			"patient_id":   req.PatientID,
		}).WithError(err)
		if errors.Is(err, apperr.ErrSlotNoLongerAvailable) {
			entry.Info("booking lost slot race")
		} else {
			entry.Warn("booking failed")
		}
		return nil, fmt.Errorf("book appointment: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"appointment_id": appt.ID,
		"slot_id":        appt.SlotID,
		"physician_id":   appt.PhysicianID,
		"patient_id":     appt.PatientID,
		"status":         appt.Status,
	}).Info("appointment booked")

	return appt, nil
}

func (s *Service) book(ctx context.Context, caller auth.Caller, req BookRequest) (*Appointment, error) {
	if !caller.IsAdmin() && !caller.Is(auth.RolePatient, req.PatientID) {
		return nil, apperr.ErrNotOwner
	}
	if req.PatientID == uuid.Nil || req.PhysicianID == uuid.Nil || req.SlotID == uuid.Nil {
		return nil, fmt.Errorf("%w: patient, physician and slot are required", apperr.ErrInvalidArgument)
	}

	var created *Appointment
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		// re-checked on every booking, approval may be revoked after slots exist
		ok, err := s.approval.IsApproved(ctx, req.PhysicianID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("physician %s: %w", req.PhysicianID, apperr.ErrPhysicianNotApproved)
		}

		sl, err := s.slots.GetSlot(ctx, req.SlotID)
		if err != nil {
			return err
		}
		if sl.PhysicianID != req.PhysicianID {
			return fmt.Errorf("%w: slot %s does not belong to physician %s", apperr.ErrInvalidArgument, sl.ID, req.PhysicianID)
		}

		now := s.now().UTC()
		if sl.Elapsed(now) {
			return fmt.Errorf("%w: slot time has elapsed", apperr.ErrSlotNoLongerAvailable)
		}

		reserved, err := s.slots.Reserve(ctx, sl.ID, req.PhysicianID)
		if err != nil {
			return err
		}

		if err := s.repo.LockPatient(ctx, req.PatientID); err != nil {
			return err
		}
		overlap, err := s.repo.HasOverlapping(ctx, req.PatientID, reserved.StartAt, reserved.EndAt, uuid.Nil)
		if err != nil {
			return err
		}
		if overlap {
			return fmt.Errorf("patient %s: %w", req.PatientID, apperr.ErrPatientDoubleBooked)
		}

		appt := Appointment{
			ID:          uuid.New(),
			PatientID:   req.PatientID,
			PhysicianID: req.PhysicianID,
			SlotID:      reserved.ID,
			Status:      s.initial,
			Reason:      strings.TrimSpace(req.Reason),
			StartAt:     reserved.StartAt,
			EndAt:       reserved.EndAt,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.repo.Create(ctx, appt); err != nil {
			return err
		}

		if err := s.append(ctx, events.AppointmentBooked, appt.ID, map[string]any{
			"patient_id":   appt.PatientID,
			"physician_id": appt.PhysicianID,
			"slot_id":      appt.SlotID,
			"status":       appt.Status,
			"start_at":     appt.StartAt,
		}); err != nil {
			return err
		}

		created = &appt
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Accept moves a pending appointment to scheduled. Only the bound physician
// may accept.
func (s *Service) Accept(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Accept")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	appt, err := s.transition(ctx, caller, id, StatusScheduled, "", isPhysicianOf(caller))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("accept appointment: %w", err)
	}
	return appt, nil
}

// Complete moves a scheduled appointment to completed. The slot stays taken.
func (s *Service) Complete(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	appt, err := s.transition(ctx, caller, id, StatusCompleted, "", isPhysicianOf(caller))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("complete appointment: %w", err)
	}
	return appt, nil
}

// Cancel cancels a pending or scheduled appointment and gives its slot back
// unless the slot already started.
func (s *Service) Cancel(ctx context.Context, caller auth.Caller, id uuid.UUID, reason string) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointment.Cancel")
	defer span.End()
	span.SetAttributes(attribute.String("appointment.id", id.String()))

	participant := func(a *Appointment) error {
		if caller.IsAdmin() ||
			caller.Is(auth.RolePatient, a.PatientID) ||
			caller.Is(auth.RolePhysician, a.PhysicianID) {
			return nil
		}
		return apperr.ErrNotOwner
	}

	appt, err := s.transition(ctx, caller, id, StatusCancelled, strings.TrimSpace(reason), participant)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}
	return appt, nil
}

func isPhysicianOf(caller auth.Caller) func(a *Appointment) error {
	return func(a *Appointment) error {
		if caller.Is(auth.RolePhysician, a.PhysicianID) {
			return nil
		}
		return apperr.ErrNotOwner
	}
}

// stillPending guards the sweep against appointments accepted since the scan.
func stillPending(a *Appointment) error {
	if a.Status != StatusPending {
		return fmt.Errorf("%w: no longer pending", apperr.ErrInvalidTransition)
	}
	return nil
}

func (s *Service) transition(ctx context.Context, caller auth.Caller, id uuid.UUID, to AppointmentStatus, reason string, check func(a *Appointment) error) (*Appointment, error) {
	var (
		updated  *Appointment
		from     AppointmentStatus
		released bool
	)

	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		appt, err := s.repo.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := check(appt); err != nil {
			return err
		}
		from = appt.Status
		if !s.allowed(from, to) {
			return fmt.Errorf("%w: %s to %s", apperr.ErrInvalidTransition, from, to)
		}

		t := Transition{From: from, To: to, At: s.now().UTC()}
		if to == StatusCancelled {
			if caller != auth.System {
				by := caller.ID
				t.CancelledBy = &by
			}
			t.Reason = &reason
		}

		updated, err = s.repo.UpdateAppointmentStatus(ctx, id, t)
		if err != nil {
			return err
		}

		if to == StatusCancelled {
			released, err = s.slots.Release(ctx, updated.SlotID)
			if err != nil {
				return err
			}
		}

		return s.append(ctx, eventFor(to), updated.ID, map[string]any{
			"from":         from,
			"to":           to,
			"patient_id":   updated.PatientID,
			"physician_id": updated.PhysicianID,
			"slot_id":      updated.SlotID,
			"by":           caller.String(),
			"reason":       reason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveTransition(string(from), string(to))
	entry := s.log.WithFields(logrus.Fields{
		"appointment_id": updated.ID,
		"from":           from,
		"to":             to,
		"caller":         caller.String(),
	})
	if to == StatusCancelled {
		entry = entry.WithField("slot_released", released)
	}
	entry.Info("appointment status changed")

	return updated, nil
}

// Get returns one appointment to a participant or an administrator.
func (s *Service) Get(ctx context.Context, caller auth.Caller, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !caller.IsAdmin() && !appt.Involves(caller.ID) {
		return nil, fmt.Errorf("get appointment: %w", apperr.ErrNotOwner)
	}
	return appt, nil
}

// ListByPatient returns the patient's appointments ordered by slot start.
func (s *Service) ListByPatient(ctx context.Context, caller auth.Caller, patientID uuid.UUID) ([]Appointment, error) {
	if !caller.IsAdmin() && !caller.Is(auth.RolePatient, patientID) {
		return nil, fmt.Errorf("list appointments by patient: %w", apperr.ErrNotOwner)
	}
	appts, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// ListByPhysician returns the physician's appointments ordered by slot start.
func (s *Service) ListByPhysician(ctx context.Context, caller auth.Caller, physicianID uuid.UUID) ([]Appointment, error) {
	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("list appointments by physician: %w", apperr.ErrNotOwner)
	}
	appts, err := s.repo.ListByPhysician(ctx, physicianID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by physician: %w", err)
	}
	return appts, nil
}

// ExpireStalePending is called by the worker periodically. Pending
// appointments whose slot already started are cancelled as expired.
func (s *Service) ExpireStalePending(ctx context.Context, batch int) (int, error) {
	ctx, span := tracer.Start(ctx, "appointment.ExpireStalePending")
	defer span.End()

	stale, err := s.repo.FindStalePending(ctx, s.now().UTC(), batch)
	if err != nil {
		span.RecordError(err)
		return 0, fmt.Errorf("find stale pending appointments: %w", err)
	}

	expired := 0
	for _, appt := range stale {
		_, err := s.transition(ctx, auth.System, appt.ID, StatusCancelled, ReasonExpired, stillPending)
		if err != nil {
			// accepted or cancelled since the scan
			if errors.Is(err, apperr.ErrInvalidTransition) {
				continue
			}
			s.log.WithError(err).WithField("appointment_id", appt.ID).Error("failed to expire appointment")
			continue
		}
		expired++
	}
	return expired, nil
}

func (s *Service) append(ctx context.Context, typ events.Type, id uuid.UUID, payload any) error {
	evt, err := events.New(typ, events.AggregateAppointment, id, payload, s.now())
	if err != nil {
		return err
	}
	return s.events.Append(ctx, evt)
}

func eventFor(to AppointmentStatus) events.Type {
	switch to {
	case StatusScheduled:
		return events.AppointmentAccepted
	case StatusCompleted:
		return events.AppointmentCompleted
	default:
		return events.AppointmentCancelled
	}
}

func bookingOutcome(err error) string {
	if err == nil {
		return "success"
	}
	return apperr.Code(err)
}
