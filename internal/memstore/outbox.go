package memstore

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/events"
)

type Outbox struct {
	store *Store
}

var _ events.Outbox = (*Outbox)(nil)

func (o *Outbox) Append(ctx context.Context, evt events.Event) error {
	o.store.with(ctx, func(d *state) {
		d.outbox = append(d.outbox, evt)
	})
	return nil
}

func (o *Outbox) FetchPending(ctx context.Context, limit int) ([]events.Event, error) {
	var out []events.Event
	o.store.with(ctx, func(d *state) {
		n := len(d.outbox)
		if limit > 0 && limit < n {
			n = limit
		}
		out = append(out, d.outbox[:n]...)
	})
	return out, nil
}

// MarkDelivered drops the event, so transaction snapshots only copy what is
// still pending.
func (o *Outbox) MarkDelivered(ctx context.Context, id uuid.UUID, _ time.Time) (bool, error) {
	var ok bool
	o.store.with(ctx, func(d *state) {
		i := slices.IndexFunc(d.outbox, func(evt events.Event) bool { return evt.ID == id })
		if i < 0 {
			return
		}
		d.outbox = slices.Delete(d.outbox, i, i+1)
		ok = true
	})
	return ok, nil
}

// Events returns the undelivered events in order. Used by tests.
func (o *Outbox) Events() []events.Event {
	var out []events.Event
	o.store.with(context.Background(), func(d *state) {
		out = append(out, d.outbox...)
	})
	return out
}
