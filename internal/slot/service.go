package slot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/db"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var tracer = otel.Tracer("telemed.internal.slot")

// ApprovalChecker reports whether a physician passed credential validation.
type ApprovalChecker interface {
	IsApproved(ctx context.Context, physicianID uuid.UUID) (bool, error)
}

// Registry owns physicians' bookable slots.
type Registry struct {
	repo     Repository
	tx       db.TxRunner
	approval ApprovalChecker
	granule  time.Duration
	loc      *time.Location
	hours    Hours
	log      *logger.Logger
	metrics  *metrics.SchedulingMetrics
	now      func() time.Time
}

type Option func(*Registry)

func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(r *Registry) { r.log = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithGranule sets the length of every created slot.
func WithGranule(d time.Duration) Option {
	return func(r *Registry) { r.granule = d }
}

// WithLocation sets the zone slot dates and times are read in.
func WithLocation(loc *time.Location) Option {
	return func(r *Registry) { r.loc = loc }
}

// WithOpeningHours limits slot creation to h. An empty h keeps DefaultHours.
func WithOpeningHours(h Hours) Option {
	return func(r *Registry) {
		if h.Close > h.Open {
			r.hours = h
		}
	}
}

func NewRegistry(repo Repository, tx db.TxRunner, approval ApprovalChecker, opts ...Option) *Registry {
	r := &Registry{
		repo:     repo,
		tx:       tx,
		approval: approval,
		granule:  30 * time.Minute,
		loc:      time.UTC,
		hours:    DefaultHours,
		log:      logger.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// CreateSlots partitions the range into granules and stores them. The
// physician must be approved and the range must not intersect existing slots.
func (r *Registry) CreateSlots(ctx context.Context, caller auth.Caller, physicianID uuid.UUID, rng Range) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "slot.CreateSlots")
	defer span.End()
	span.SetAttributes(
		attribute.String("physician.id", physicianID.String()),
		attribute.String("slot.date", rng.Date.Format(time.DateOnly)),
	)

	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("create slots: %w", apperr.ErrNotOwner)
	}

	now := r.now().UTC()
	day, start, end, err := bounds(rng, r.loc, r.hours)
	if err != nil {
		return nil, err
	}
	if start.Before(now) {
		return nil, fmt.Errorf("%w: cannot create slots in the past", apperr.ErrInvalidArgument)
	}
	slots, err := Partition(physicianID, day, start, end, r.granule, now)
	if err != nil {
		return nil, err
	}

	err = r.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := r.repo.LockPhysician(ctx, physicianID); err != nil {
			if errors.Is(err, ErrPhysicianNotFound) {
				return fmt.Errorf("physician %s: %w", physicianID, apperr.ErrPhysicianNotApproved)
			}
			return err
		}

		ok, err := r.approval.IsApproved(ctx, physicianID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("physician %s: %w", physicianID, apperr.ErrPhysicianNotApproved)
		}

		overlapping, err := r.repo.FindOverlapping(ctx, physicianID, start, end)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return fmt.Errorf("%w: %s-%s intersects slot %s", apperr.ErrOverlappingSlot,
				start.Format(time.RFC3339), end.Format(time.RFC3339), overlapping[0].ID)
		}

		return r.repo.InsertSlots(ctx, slots)
	})
	if err != nil {
		span.RecordError(err)
		r.metrics.ObserveSlotsCreated(apperr.Code(err), 0)
		return nil, fmt.Errorf("create slots: %w", err)
	}

	r.metrics.ObserveSlotsCreated("success", len(slots))
	r.log.WithFields(logrus.Fields{
		"physician_id": physicianID,
		"date":         day.Format(time.DateOnly),
		"count":        len(slots),
	}).Info("slots created")

	return slots, nil
}

// ListAvailable returns future available slots ordered by date and start.
// Physicians that are not approved expose nothing.
func (r *Registry) ListAvailable(ctx context.Context, physicianID uuid.UUID) ([]Slot, error) {
	ctx, span := tracer.Start(ctx, "slot.ListAvailable")
	defer span.End()
	span.SetAttributes(attribute.String("physician.id", physicianID.String()))

	ok, err := r.approval.IsApproved(ctx, physicianID)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	if !ok {
		return []Slot{}, nil
	}

	now := r.now().UTC()
	slots, err := r.repo.ListByPhysician(ctx, physicianID, &now)
	if err != nil {
		return nil, fmt.Errorf("list available slots: %w", err)
	}
	return slots, nil
}

// ListSlots returns the physician's full agenda, reserved and past slots included.
func (r *Registry) ListSlots(ctx context.Context, caller auth.Caller, physicianID uuid.UUID) ([]Slot, error) {
	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("list slots: %w", apperr.ErrNotOwner)
	}
	slots, err := r.repo.ListByPhysician(ctx, physicianID, nil)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (r *Registry) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	s, err := r.repo.GetSlot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get slot: %w", err)
	}
	return s, nil
}

// Toggle lets the owning physician block or free a slot manually.
func (r *Registry) Toggle(ctx context.Context, caller auth.Caller, slotID uuid.UUID, available bool) (*Slot, error) {
	ctx, span := tracer.Start(ctx, "slot.Toggle")
	defer span.End()
	span.SetAttributes(attribute.String("slot.id", slotID.String()))

	var result *Slot
	err := r.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err := r.repo.LockSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, s.PhysicianID) {
			return apperr.ErrNotOwner
		}
		if s.Available == available {
			result = s
			return nil
		}

		now := r.now().UTC()
		if available {
			if s.Elapsed(now) {
				return fmt.Errorf("%w: slot has already started", apperr.ErrInvalidArgument)
			}
			held, err := r.repo.HasActiveAppointment(ctx, s.ID)
			if err != nil {
				return err
			}
			if held {
				return fmt.Errorf("slot %s: %w", s.ID, apperr.ErrSlotReserved)
			}
		}

		result, err = r.repo.SetAvailability(ctx, s.ID, available, now)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("toggle slot: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"slot_id":   slotID,
		"available": available,
		"caller":    caller.String(),
	}).Info("slot availability set")
	return result, nil
}

// Reserve takes the slot for a booking. It must run inside the booking
// transaction so a failed booking gives the slot back.
func (r *Registry) Reserve(ctx context.Context, slotID, physicianID uuid.UUID) (*Slot, error) {
	return r.repo.Reserve(ctx, slotID, physicianID, r.now().UTC())
}

// Release makes a slot bookable again unless it has already started.
func (r *Registry) Release(ctx context.Context, slotID uuid.UUID) (bool, error) {
	return r.repo.Release(ctx, slotID, r.now().UTC())
}
