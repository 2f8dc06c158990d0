package credential_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/internal/auth"
	"github.com/hackgods/telemed-scheduling/internal/credential"
	"github.com/hackgods/telemed-scheduling/internal/events"
	"github.com/hackgods/telemed-scheduling/internal/lock"
	"github.com/hackgods/telemed-scheduling/internal/memstore"
	redisclient "github.com/hackgods/telemed-scheduling/internal/redis"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var admin = auth.Caller{ID: uuid.New(), Role: auth.RoleAdministrator}

// tickingClock advances one minute per reading so decisions are ordered.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type fixture struct {
	store *memstore.Store
	gate  *credential.Gate
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := &tickingClock{now: time.Date(2024, 5, 20, 9, 0, 0, 0, time.UTC)}
	gate := credential.NewGate(
		store.Credentials(),
		store,
		lock.NewLocalLocker(time.Second),
		store.Outbox(),
		credential.WithLogger(logger.Discard()),
		credential.WithClock(clock.Now),
	)
	return &fixture{store: store, gate: gate}
}

func (f *fixture) physician(t *testing.T) auth.Caller {
	t.Helper()
	c := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err := f.gate.RegisterPhysician(context.Background(), c, c.ID)
	require.NoError(t, err)
	return c
}

func (f *fixture) docType(t *testing.T, name string, required bool) *credential.DocumentType {
	t.Helper()
	dt, err := f.gate.CreateDocumentType(context.Background(), admin, name, "", required)
	require.NoError(t, err)
	return dt
}

func (f *fixture) submit(t *testing.T, p auth.Caller, dt *credential.DocumentType) *credential.Submission {
	t.Helper()
	sub, err := f.gate.SubmitDocument(context.Background(), p, p.ID, dt.ID, "s3://docs/"+dt.Name+".pdf")
	require.NoError(t, err)
	return sub
}

func TestRegisterPhysicianIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)

	again, err := f.gate.RegisterPhysician(ctx, p, p.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, again.State)

	other := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err = f.gate.RegisterPhysician(ctx, other, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)
}

func TestSubmitDocument(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)
	license := f.docType(t, "license", true)

	sub := f.submit(t, p, license)
	assert.Equal(t, credential.StatePending, sub.State)

	state, err := f.gate.GetPhysicianState(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, state, "submission alone never changes state")

	_, err = f.gate.SubmitDocument(ctx, p, p.ID, uuid.New(), "ref")
	assert.ErrorIs(t, err, apperr.ErrInvalidDocumentType)

	ghost := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err = f.gate.SubmitDocument(ctx, ghost, ghost.ID, license.ID, "ref")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.gate.SubmitDocument(ctx, p, p.ID, license.ID, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	evts := f.store.Outbox().Events()
	require.Len(t, evts, 1)
	assert.Equal(t, events.DocumentSubmitted, evts[0].Type)
}

func TestReviewDocumentApprovesPhysician(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)
	license := f.docType(t, "license", true)
	board := f.docType(t, "board", true)
	f.docType(t, "cv", false)

	first := f.submit(t, p, license)
	second := f.submit(t, p, board)

	res, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: first.ID, Decision: credential.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, res.PhysicianState)
	assert.Equal(t, 1, res.ApprovedCount)
	assert.Equal(t, 2, res.RequiredCount)

	res, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: second.ID, Decision: credential.DecisionApprove, Notes: "ok"})
	require.NoError(t, err)
	assert.Equal(t, credential.StateApproved, res.PhysicianState)
	assert.Equal(t, 2, res.ApprovedCount)
	assert.Equal(t, "ok", res.Document.ReviewNotes)
	require.NotNil(t, res.Document.ReviewerID)
	assert.Equal(t, admin.ID, *res.Document.ReviewerID)

	approved, err := f.gate.IsApproved(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, approved)

	var changed int
	for _, evt := range f.store.Outbox().Events() {
		if evt.Type == events.PhysicianStateChanged {
			changed++
		}
	}
	assert.Equal(t, 1, changed)
}

func TestReviewDocumentErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)
	license := f.docType(t, "license", true)
	sub := f.submit(t, p, license)

	_, err := f.gate.ReviewDocument(ctx, p, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove})
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	_, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: "maybe"})
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: uuid.New(), Decision: credential.DecisionApprove})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionReject})
	require.NoError(t, err)
	_, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove})
	assert.ErrorIs(t, err, apperr.ErrDocumentAlreadyReviewed)
}

func TestExplicitRejectionAndRecovery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)
	license := f.docType(t, "license", true)

	plain := f.submit(t, p, license)
	res, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: plain.ID, Decision: credential.DecisionReject})
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, res.PhysicianState, "rejection without the flag stays pending")

	flagged := f.submit(t, p, license)
	res, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: flagged.ID, Decision: credential.DecisionReject, RejectPhysician: true})
	require.NoError(t, err)
	assert.Equal(t, credential.StateRejected, res.PhysicianState)

	resubmitted := f.submit(t, p, license)
	res, err = f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: resubmitted.ID, Decision: credential.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, credential.StateApproved, res.PhysicianState)
}

func TestConcurrentReviewsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)

	var subs []*credential.Submission
	for _, name := range []string{"license", "board", "insurance", "id"} {
		subs = append(subs, f.submit(t, p, f.docType(t, name, true)))
	}

	var wg sync.WaitGroup
	for _, sub := range subs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: id, Decision: credential.DecisionApprove})
			assert.NoError(t, err)
		}(sub.ID)
	}
	wg.Wait()

	state, err := f.gate.GetPhysicianState(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StateApproved, state)
}

func TestPhysicianStatusAndListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.physician(t)
	license := f.docType(t, "license", true)
	board := f.docType(t, "board", true)

	sub := f.submit(t, p, license)
	f.submit(t, p, board)
	_, err := f.gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove})
	require.NoError(t, err)

	st, err := f.gate.PhysicianStatus(ctx, p, p.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, st.State)
	assert.Equal(t, 2, st.RequiredCount)
	assert.Equal(t, 1, st.ApprovedCount)
	assert.Equal(t, 2, st.Submitted)
	assert.Equal(t, 1, st.Pending)
	assert.Equal(t, []uuid.UUID{board.ID}, st.Missing)

	docs, err := f.gate.ListDocuments(ctx, p, p.ID)
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	stranger := auth.Caller{ID: uuid.New(), Role: auth.RolePatient}
	_, err = f.gate.ListDocuments(ctx, stranger, p.ID)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	pending, err := f.gate.ListPhysiciansByState(ctx, admin, credential.StatePending)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = f.gate.ListPhysiciansByState(ctx, stranger, credential.StatePending)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	approved, err := f.gate.ListPhysiciansByState(ctx, stranger, credential.StateApproved)
	require.NoError(t, err)
	assert.Empty(t, approved)

	_, err = f.gate.ListPhysiciansByState(ctx, admin, "unknown")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}

func TestReviewUnderFrozenClockFollowsDecisionOrder(t *testing.T) {
	store := memstore.New()
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	gate := credential.NewGate(store.Credentials(), store, lock.NewLocalLocker(time.Second), store.Outbox(),
		credential.WithLogger(logger.Discard()),
		credential.WithClock(func() time.Time { return at }),
	)
	ctx := context.Background()

	p := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err := gate.RegisterPhysician(ctx, p, p.ID)
	require.NoError(t, err)
	license, err := gate.CreateDocumentType(ctx, admin, "license", "", true)
	require.NoError(t, err)

	// every submission and decision lands on the same instant
	for i := 0; i < 20; i++ {
		first, err := gate.SubmitDocument(ctx, p, p.ID, license.ID, "s3://docs/license.pdf")
		require.NoError(t, err)
		res, err := gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: first.ID, Decision: credential.DecisionApprove})
		require.NoError(t, err)
		require.Equal(t, credential.StateApproved, res.PhysicianState, "round %d", i)

		second, err := gate.SubmitDocument(ctx, p, p.ID, license.ID, "s3://docs/license-v2.pdf")
		require.NoError(t, err)
		res, err = gate.ReviewDocument(ctx, admin, credential.Review{
			DocumentID:      second.ID,
			Decision:        credential.DecisionReject,
			RejectPhysician: true,
		})
		require.NoError(t, err)
		require.Equal(t, credential.StateRejected, res.PhysicianState, "round %d", i)
		assert.Greater(t, res.Document.DecisionSeq, int64(0))
	}
}

func TestReviewWithRedisDownIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	store := memstore.New()
	gate := credential.NewGate(store.Credentials(), store,
		redisclient.NewRedisLocker(client, time.Second, 100*time.Millisecond),
		store.Outbox(),
		credential.WithLogger(logger.Discard()),
	)
	ctx := context.Background()

	p := auth.Caller{ID: uuid.New(), Role: auth.RolePhysician}
	_, err := gate.RegisterPhysician(ctx, p, p.ID)
	require.NoError(t, err)
	license, err := gate.CreateDocumentType(ctx, admin, "license", "", true)
	require.NoError(t, err)
	sub, err := gate.SubmitDocument(ctx, p, p.ID, license.ID, "ref")
	require.NoError(t, err)

	mr.Close()

	_, err = gate.ReviewDocument(ctx, admin, credential.Review{DocumentID: sub.ID, Decision: credential.DecisionApprove})
	assert.ErrorIs(t, err, apperr.ErrUnavailable)
	assert.Equal(t, "unavailable", apperr.Code(err))

	got, err := store.Credentials().GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, credential.StatePending, got.State)
}

func TestCreateDocumentTypeRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.docType(t, "license", true)

	_, err := f.gate.CreateDocumentType(ctx, admin, "  license ", "again", false)
	assert.ErrorIs(t, err, credential.ErrDuplicateDocumentType)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	types, err := f.gate.ListDocumentTypes(ctx)
	require.NoError(t, err)
	assert.Len(t, types, 1)
}

func TestCreateDocumentTypeRequiresAdmin(t *testing.T) {
	f := newFixture(t)
	p := f.physician(t)

	_, err := f.gate.CreateDocumentType(context.Background(), p, "license", "", true)
	assert.ErrorIs(t, err, apperr.ErrNotOwner)

	_, err = f.gate.CreateDocumentType(context.Background(), admin, " ", "", true)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
}
