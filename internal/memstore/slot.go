package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/slot"
)

type SlotRepository struct {
	store *Store
}

var _ slot.Repository = (*SlotRepository)(nil)

func sortSlots(out []slot.Slot) {
	slices.SortFunc(out, func(a, b slot.Slot) int {
		if c := a.Date.Compare(b.Date); c != 0 {
			return c
		}
		return a.StartAt.Compare(b.StartAt)
	})
}

func (r *SlotRepository) LockPhysician(ctx context.Context, physicianID uuid.UUID) error {
	var ok bool
	r.store.with(ctx, func(d *state) {
		_, ok = d.physicians[physicianID]
	})
	if !ok {
		return slot.ErrPhysicianNotFound
	}
	return nil
}

func (r *SlotRepository) FindOverlapping(ctx context.Context, physicianID uuid.UUID, start, end time.Time) ([]slot.Slot, error) {
	var out []slot.Slot
	r.store.with(ctx, func(d *state) {
		for _, s := range d.slots {
			if s.PhysicianID == physicianID && s.Overlaps(start, end) {
				out = append(out, s)
			}
		}
	})
	sortSlots(out)
	return out, nil
}

func (r *SlotRepository) InsertSlots(ctx context.Context, slots []slot.Slot) error {
	r.store.with(ctx, func(d *state) {
		for _, s := range slots {
			d.slots[s.ID] = s
		}
	})
	return nil
}

func (r *SlotRepository) GetSlot(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	var (
		out slot.Slot
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		out, ok = d.slots[id]
	})
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return &out, nil
}

func (r *SlotRepository) LockSlot(ctx context.Context, id uuid.UUID) (*slot.Slot, error) {
	return r.GetSlot(ctx, id)
}

func (r *SlotRepository) ListByPhysician(ctx context.Context, physicianID uuid.UUID, availableAfter *time.Time) ([]slot.Slot, error) {
	var out []slot.Slot
	r.store.with(ctx, func(d *state) {
		for _, s := range d.slots {
			if s.PhysicianID != physicianID {
				continue
			}
			if availableAfter != nil && (!s.Available || !s.StartAt.After(*availableAfter)) {
				continue
			}
			out = append(out, s)
		}
	})
	sortSlots(out)
	return out, nil
}

func (r *SlotRepository) Reserve(ctx context.Context, id, physicianID uuid.UUID, now time.Time) (*slot.Slot, error) {
	var (
		out slot.Slot
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		s, found := d.slots[id]
		if !found || s.PhysicianID != physicianID || !s.Available || !s.StartAt.After(now) {
			return
		}
		s.Available = false
		s.UpdatedAt = now
		d.slots[id] = s
		out, ok = s, true
	})
	if !ok {
		return nil, slot.ErrSlotUnavailable
	}
	return &out, nil
}

func (r *SlotRepository) Release(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var ok bool
	r.store.with(ctx, func(d *state) {
		s, found := d.slots[id]
		if !found || s.Available || !s.StartAt.After(now) {
			return
		}
		s.Available = true
		s.UpdatedAt = now
		d.slots[id] = s
		ok = true
	})
	return ok, nil
}

func (r *SlotRepository) SetAvailability(ctx context.Context, id uuid.UUID, available bool, now time.Time) (*slot.Slot, error) {
	var (
		out slot.Slot
		ok  bool
	)
	r.store.with(ctx, func(d *state) {
		var s slot.Slot
		if s, ok = d.slots[id]; ok {
			s.Available = available
			s.UpdatedAt = now
			d.slots[id] = s
			out = s
		}
	})
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	return &out, nil
}

func (r *SlotRepository) HasActiveAppointment(ctx context.Context, slotID uuid.UUID) (bool, error) {
	var held bool
	r.store.with(ctx, func(d *state) {
		for _, a := range d.appointments {
			if a.SlotID == slotID && a.Status != appointment.StatusCancelled {
				held = true
				return
			}
		}
	})
	return held, nil
}
