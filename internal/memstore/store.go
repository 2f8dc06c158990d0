// Package memstore keeps every repository in process memory. It backs
// STORE=memory and the service tests. Transactions are serialized and roll
// back by restoring a snapshot taken when they began.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/events"
	"github.com/hackgods/telemed-scheduling/internal/slot"
)

type state struct {
	physicians   map[uuid.UUID]credential.Physician
	docTypes     map[uuid.UUID]credential.DocumentType
	submissions  map[uuid.UUID]credential.Submission
	slots        map[uuid.UUID]slot.Slot
	appointments map[uuid.UUID]appointment.Appointment
	outbox       []events.Event // undelivered only
	decisionSeq  int64
}

func (s *state) clone() *state {
	return &state{
		physicians:   maps.Clone(s.physicians),
		docTypes:     maps.Clone(s.docTypes),
		submissions:  maps.Clone(s.submissions),
		slots:        maps.Clone(s.slots),
		appointments: maps.Clone(s.appointments),
		outbox:       slices.Clone(s.outbox),
		decisionSeq:  s.decisionSeq,
	}
}

type Store struct {
	mu   sync.Mutex
	data *state
}

func New() *Store {
	return &Store{
		data: &state{
			physicians:   make(map[uuid.UUID]credential.Physician),
			docTypes:     make(map[uuid.UUID]credential.DocumentType),
			submissions:  make(map[uuid.UUID]credential.Submission),
			slots:        make(map[uuid.UUID]slot.Slot),
			appointments: make(map[uuid.UUID]appointment.Appointment),
		},
	}
}

type txKey struct{}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(bool)
	return ok
}

// WithinTx holds the store for the whole of fn. Nested calls join.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.data = snapshot
		return err
	}
	return nil
}

// with runs fn against the data, taking the store lock unless ctx already
// holds it through WithinTx.
func (s *Store) with(ctx context.Context, fn func(d *state)) {
	if !inTx(ctx) {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	fn(s.data)
}

func (s *Store) Credentials() *CredentialRepository {
	return &CredentialRepository{store: s}
}

func (s *Store) Slots() *SlotRepository {
	return &SlotRepository{store: s}
}

func (s *Store) Appointments() *AppointmentRepository {
	return &AppointmentRepository{store: s}
}

func (s *Store) Outbox() *Outbox {
	return &Outbox{store: s}
}
