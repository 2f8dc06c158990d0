package appointment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/internal/appointment"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/events"
	"github.com/hackgods/telemed-scheduling/internal/lock"
	"github.com/hackgods/telemed-scheduling/internal/memstore"
	"github.com/hackgods/telemed-scheduling/internal/slot"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var (
	admin = auth.Caller{ID: uuid.New(), Role: auth.RoleAdministrator}
	june1 = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	clock    *clock
	store    *memstore.Store
	gate     *credential.Gate
	registry *slot.Registry
	svc      *appointment.Service
	license  *credential.DocumentType
}

func newFixture(t *testing.T, opts ...appointment.Option) *fixture {
	t.Helper()
	c := &clock{now: time.Date(2024, 5, 31, 12, 0, 0, 0, time.UTC)}
	store := memstore.New()
	log := logger.Discard()

	gate := credential.NewGate(store.Credentials(), store, lock.NewLocalLocker(time.Second), store.Outbox(),
		credential.WithLogger(log), credential.WithClock(c.Now))
	registry := slot.NewRegistry(store.Slots(), store, gate,
		slot.WithLogger(log), slot.WithClock(c.Now))

	opts = append([]appointment.Option{appointment.WithLogger(log), appointment.WithClock(c.Now)}, opts...)
	svc := appointment.NewService(store.Appointments(), store, registry, gate, store.Outbox(), opts...)

	license, err := gate.CreateDocumentType(context.Background(), admin, "license", "", true)
	require.NoError(t, err)

	return &fixture{clock: c, store: store, gate: gate, registry: registry, svc: svc, license: license}
}

func (f *fixture) approvedPhysician(t *testing.T) auth.Caller {
	t.Helper()
	ctx := context.Background()
	p := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err := f.gate.RegisterPhysician(ctx, p, p.ID)
	require.NoError(t, err)
	sub, err := f.gate.SubmitDocument(ctx, p, p.ID, f.license.ID, "s3://docs/license.pdf")
	require.NoError(t, err)
	res, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove})
	require.NoError(t, err)
	require.Equal(t, credential.StateApproved, res.PhysicianState)
	return p
}

func (f *fixture) slots(t *testing.T, p auth.Caller, start, end time.Duration) []slot.Slot {
	t.Helper()
	slots, err := f.registry.CreateSlots(context.Background(), p, p.ID, slot.Range{Date: june1, Start: start, End: end})
	require.NoError(t, err)
	return slots
}

func patient() auth.Caller {
	return auth.Caller{ID: uuid.New(), Role: auth.RolePatient}
}

func (f *fixture) book(pt auth.Caller, p auth.Caller, s slot.Slot) (*appointment.Appointment, error) {
	return f.svc.Book(context.Background(), pt, appointment.BookRequest{
		PatientID:   pt.ID,
		PhysicianID: p.ID,
		SlotID:      s.ID,
		Reason:      "follow-up",
	})
}

func (f *fixture) slotAvailable(t *testing.T, id uuid.UUID) bool {
	t.Helper()
	s, err := f.registry.GetSlot(context.Background(), id)
	require.NoError(t, err)
	return s.Available
}

func TestEndToEndScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	doctor := f.approvedPhysician(t)
	slots := f.slots(t, doctor, 9*time.Hour, 10*time.Hour)
	require.Len(t, slots, 2)

	x, y, z := patient(), patient(), patient()

	appt, err := f.book(x, doctor, slots[0])
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, appt.Status)

	appt, err = f.svc.Accept(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)
	assert.NotNil(t, appt.AcceptedAt)

	appt, err = f.svc.Complete(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, appt.Status)
	assert.False(t, f.slotAvailable(t, slots[0].ID), "completed slot stays occupied")

	_, err = f.book(y, doctor, slots[1])
	require.NoError(t, err)

	_, err = f.book(z, doctor, slots[1])
	assert.ErrorIs(t, err, apperr.ErrSlotNoLongerAvailable)

	available, err := f.registry.ListAvailable(ctx, doctor.ID)
	require.NoError(t, err)
	assert.Empty(t, available)

	f.clock.Set(june1.Add(12 * time.Hour))
	assert.False(t, f.slotAvailable(t, slots[0].ID))
}

func TestConcurrentBookingsExactlyOneWins(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	const n = 50
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   []*appointment.Appointment
		losses int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			appt, err := f.book(patient(), doctor, target)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				assert.ErrorIs(t, err, apperr.ErrSlotNoLongerAvailable)
				losses++
				return
			}
			wins = append(wins, appt)
		}()
	}
	close(start)
	wg.Wait()

	require.Len(t, wins, 1)
	assert.Equal(t, n-1, losses)
	assert.False(t, f.slotAvailable(t, target.ID))

	list, err := f.svc.ListByPhysician(context.Background(), doctor, doctor.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	booked := 0
	for _, evt := range f.store.Outbox().Events() {
		if evt.Type == events.AppointmentBooked {
			booked++
		}
	}
	assert.Equal(t, 1, booked, "losing bookings leave no events behind")
}

func TestCancellationReleasesCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	first := patient()
	appt, err := f.book(first, doctor, target)
	require.NoError(t, err)
	assert.False(t, f.slotAvailable(t, target.ID))

	cancelled, err := f.svc.Cancel(ctx, first, appt.ID, "feeling better")
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, cancelled.Status)
	assert.Equal(t, "feeling better", cancelled.CancellationReason)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, first.ID, *cancelled.CancelledBy)
	assert.True(t, f.slotAvailable(t, target.ID))

	_, err = f.book(patient(), doctor, target)
	require.NoError(t, err)
}

func TestCancelAfterSlotElapsedKeepsSlot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	pt := patient()
	appt, err := f.book(pt, doctor, target)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, doctor, appt.ID)
	require.NoError(t, err)

	f.clock.Set(june1.Add(9*time.Hour + 10*time.Minute))
	_, err = f.svc.Cancel(ctx, doctor, appt.ID, "no show")
	require.NoError(t, err)
	assert.False(t, f.slotAvailable(t, target.ID))
}

func TestStateMachineClosure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	slots := f.slots(t, doctor, 9*time.Hour, 10*time.Hour)

	pt := patient()
	completed, err := f.book(pt, doctor, slots[0])
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, doctor, completed.ID)
	require.NoError(t, err)
	_, err = f.svc.Complete(ctx, doctor, completed.ID)
	require.NoError(t, err)

	cancelled, err := f.book(pt, doctor, slots[1])
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, pt, cancelled.ID, "")
	require.NoError(t, err)

	for _, id := range []uuid.UUID{completed.ID, cancelled.ID} {
		_, err = f.svc.Accept(ctx, doctor, id)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		_, err = f.svc.Complete(ctx, doctor, id)
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		_, err = f.svc.Cancel(ctx, pt, id, "again")
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
		_, err = f.svc.Cancel(ctx, admin, id, "again")
		assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
	}
}

func TestInvalidTransitionsFromLiveStates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	appt, err := f.book(patient(), doctor, target)
	require.NoError(t, err)

	_, err = f.svc.Complete(ctx, doctor, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition, "pending cannot complete by default")

	_, err = f.svc.Accept(ctx, doctor, appt.ID)
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, doctor, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestCompleteFromPendingWhenEnabled(t *testing.T) {
	f := newFixture(t, appointment.WithCompleteFromPending(true))
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	appt, err := f.book(patient(), doctor, target)
	require.NoError(t, err)
	appt, err = f.svc.Complete(context.Background(), doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCompleted, appt.Status)
}

func TestDirectBookingFlow(t *testing.T) {
	f := newFixture(t, appointment.WithDirectBooking(true))
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	appt, err := f.book(patient(), doctor, target)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, appt.Status)

	_, err = f.svc.Accept(context.Background(), doctor, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrInvalidTransition)
}

func TestBookRechecksApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	// approval revoked after slots exist
	sub, err := f.gate.SubmitDocument(ctx, doctor, doctor.ID, f.license.ID, "s3://docs/license-v2.pdf")
	require.NoError(t, err)
	res, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionReject, RejectPhysician: true})
	require.NoError(t, err)
	require.Equal(t, credential.StateRejected, res.PhysicianState)

	_, err = f.book(patient(), doctor, target)
	assert.ErrorIs(t, err, apperr.ErrPhysicianNotApproved)
	assert.True(t, f.slotAvailable(t, target.ID))
}

func TestBookValidation(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedPhysician(t)
	other := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]
	pt := patient()

	_, err := f.book(pt, other, target)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.book(pt, doctor, slot.Slot{ID: uuid.New()})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.Book(context.Background(), patient(), appointment.BookRequest{PatientID: pt.ID, PhysicianID: doctor.ID, SlotID: target.ID})
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	// administrators book on a patient's behalf
	appt, err := f.svc.Book(context.Background(), admin, appointment.BookRequest{PatientID: pt.ID, PhysicianID: doctor.ID, SlotID: target.ID})
	require.NoError(t, err)
	assert.Equal(t, pt.ID, appt.PatientID)
}

func TestBookElapsedSlot(t *testing.T) {
	f := newFixture(t)
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	f.clock.Set(june1.Add(9*time.Hour + 5*time.Minute))
	_, err := f.book(patient(), doctor, target)
	assert.ErrorIs(t, err, apperr.ErrSlotNoLongerAvailable)
}

func TestPatientCannotDoubleBook(t *testing.T) {
	f := newFixture(t)
	first := f.approvedPhysician(t)
	second := f.approvedPhysician(t)
	a := f.slots(t, first, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]
	b := f.slots(t, second, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]

	pt := patient()
	_, err := f.book(pt, first, a)
	require.NoError(t, err)

	_, err = f.book(pt, second, b)
	assert.ErrorIs(t, err, apperr.ErrPatientDoubleBooked)
	assert.True(t, f.slotAvailable(t, b.ID), "failed booking rolls the reservation back")
}

func TestAuthorization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	target := f.slots(t, doctor, 9*time.Hour, 9*time.Hour+30*time.Minute)[0]
	pt := patient()

	appt, err := f.book(pt, doctor, target)
	require.NoError(t, err)

	stranger := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err = f.svc.Accept(ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	_, err = f.svc.Accept(ctx, pt, appt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	_, err = f.svc.Cancel(ctx, patient(), appt.ID, "")
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	_, err = f.svc.Get(ctx, patient(), appt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	got, err := f.svc.Get(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.ID, got.ID)

	_, err = f.svc.ListByPatient(ctx, patient(), pt.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
	_, err = f.svc.ListByPhysician(ctx, stranger, doctor.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	_, err = f.svc.Accept(ctx, doctor, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestListByPatientOrderedBySlotStart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	slots := f.slots(t, doctor, 9*time.Hour, 11*time.Hour)
	pt := patient()

	for _, i := range []int{3, 0, 2} {
		_, err := f.book(pt, doctor, slots[i])
		require.NoError(t, err)
	}

	list, err := f.svc.ListByPatient(ctx, pt, pt.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, slots[0].ID, list[0].SlotID)
	assert.Equal(t, slots[2].ID, list[1].SlotID)
	assert.Equal(t, slots[3].ID, list[2].SlotID)
}

func TestExpireStalePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	doctor := f.approvedPhysician(t)
	slots := f.slots(t, doctor, 9*time.Hour, 10*time.Hour)

	stale, err := f.book(patient(), doctor, slots[0])
	require.NoError(t, err)
	accepted, err := f.book(patient(), doctor, slots[1])
	require.NoError(t, err)
	_, err = f.svc.Accept(ctx, doctor, accepted.ID)
	require.NoError(t, err)

	n, err := f.svc.ExpireStalePending(ctx, 100)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing has started yet")

	f.clock.Set(june1.Add(11 * time.Hour))
	n, err = f.svc.ExpireStalePending(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := f.svc.Get(ctx, admin, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusCancelled, got.Status)
	assert.Equal(t, appointment.ReasonExpired, got.CancellationReason)
	assert.Nil(t, got.CancelledBy)
	assert.False(t, f.slotAvailable(t, slots[0].ID))

	got, err = f.svc.Get(ctx, admin, accepted.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusScheduled, got.Status)
}
