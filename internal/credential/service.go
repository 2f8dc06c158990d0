package credential

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
	"github.com/hackgods/telemed-scheduling/internal/lock"
	"github.com/hackgods/telemed-scheduling/internal/metrics"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

var tracer = otel.Tracer("telemed.internal.credential")

// Gate decides whether a physician may expose slots and receive bookings.
type Gate struct {
	repo    Repository
	tx      db.TxRunner
	locker  lock.Locker
	events  events.Appender
	log     *logger.Logger
	metrics *metrics.SchedulingMetrics
	now     func() time.Time
}

type Option func(*Gate)

func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

func WithLogger(l *logger.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func WithMetrics(m *metrics.SchedulingMetrics) Option {
	return func(g *Gate) { g.metrics = m }
}

func NewGate(repo Repository, tx db.TxRunner, locker lock.Locker, appender events.Appender, opts ...Option) *Gate {
	g := &Gate{
		repo:   repo,
		tx:     tx,
		locker: locker,
		events: appender,
		log:    logger.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RegisterPhysician creates the physician in Pending state. Registering an
// existing physician returns it unchanged.
func (g *Gate) RegisterPhysician(ctx context.Context, caller auth.Caller, physicianID uuid.UUID) (*Physician, error) {
	ctx, span := tracer.Start(ctx, "credential.RegisterPhysician")
	defer span.End()
	span.SetAttributes(attribute.String("physician.id", physicianID.String()))

	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("register physician %s: %w", physicianID, apperr.ErrNotOwner)
	}

	now := g.now().UTC()
	p, err := g.repo.CreatePhysician(ctx, Physician{
		ID:        physicianID,
		State:     StatePending,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("register physician: %w", err)
	}
	return p, nil
}

// SubmitDocument records a new pending submission. It never changes the
// physician's aggregate state.
func (g *Gate) SubmitDocument(ctx context.Context, caller auth.Caller, physicianID, typeID uuid.UUID, fileRef string) (*Submission, error) {
	ctx, span := tracer.Start(ctx, "credential.SubmitDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("physician.id", physicianID.String()),
		attribute.String("document_type.id", typeID.String()),
	)

	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("submit document: %w", apperr.ErrNotOwner)
	}
	fileRef = strings.TrimSpace(fileRef)
	if fileRef == "" {
		return nil, fmt.Errorf("%w: file reference is required", apperr.ErrInvalidArgument)
	}

	sub := Submission{
		ID:             uuid.New(),
		PhysicianID:    physicianID,
		DocumentTypeID: typeID,
		FileRef:        fileRef,
		State:          StatePending,
		SubmittedAt:    g.now().UTC(),
	}

	err := g.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := g.repo.GetDocumentType(ctx, typeID); err != nil {
			return err
		}
		if _, err := g.repo.GetPhysician(ctx, physicianID); err != nil {
			return err
		}
		if err := g.repo.CreateSubmission(ctx, sub); err != nil {
			return err
		}
		return g.append(ctx, events.DocumentSubmitted, events.AggregateDocument, sub.ID, map[string]any{
			"physician_id":     physicianID,
			"document_type_id": typeID,
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("submit document: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"document_id":  sub.ID,
		"physician_id": physicianID,
		"type_id":      typeID,
	}).Info("document submitted")

	return &sub, nil
}

// ReviewDocument decides a pending submission and recomputes the
// physician's aggregate state under a per-physician lock.
func (g *Gate) ReviewDocument(ctx context.Context, caller auth.Caller, review Review) (*ReviewResult, error) {
	ctx, span := tracer.Start(ctx, "credential.ReviewDocument")
	defer span.End()
	span.SetAttributes(
		attribute.String("document.id", review.DocumentID.String()),
		attribute.String("review.decision", string(review.Decision)),
	)

	if !caller.IsAdmin() {
		return nil, fmt.Errorf("review document: %w", apperr.ErrNotOwner)
	}
	decided, ok := review.Decision.State()
	if !ok {
		return nil, fmt.Errorf("%w: decision must be %q or %q", apperr.ErrInvalidArgument, DecisionApprove, DecisionReject)
	}

	sub, err := g.repo.GetSubmission(ctx, review.DocumentID)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("review document: %w", err)
	}
	if sub.State != StatePending {
		return nil, fmt.Errorf("review document %s: %w", sub.ID, ErrAlreadyReviewed)
	}

	var result *ReviewResult
	var previous State
	err = g.locker.WithLock(ctx, lock.Key("physician", sub.PhysicianID), func(ctx context.Context) error {
		return g.tx.WithinTx(ctx, func(ctx context.Context) error {
			physician, err := g.repo.LockPhysician(ctx, sub.PhysicianID)
			if err != nil {
				return err
			}
			previous = physician.State

			now := g.now().UTC()
			updated, err := g.repo.DecideSubmission(ctx, sub.ID, decided, caller.ID, review.Notes, review.RejectPhysician, now)
			if err != nil {
				return err
			}

			required, err := g.requiredTypes(ctx)
			if err != nil {
				return err
			}
			subs, err := g.repo.ListSubmissions(ctx, physician.ID)
			if err != nil {
				return err
			}

			state, approved := Aggregate(physician.State, required, subs)
			if state != physician.State {
				if err := g.repo.UpdatePhysicianState(ctx, physician.ID, state, now); err != nil {
					return err
				}
				if err := g.append(ctx, events.PhysicianStateChanged, events.AggregatePhysician, physician.ID, map[string]any{
					"from": physician.State,
					"to":   state,
				}); err != nil {
					return err
				}
			}

			if err := g.append(ctx, events.DocumentReviewed, events.AggregateDocument, updated.ID, map[string]any{
				"physician_id":     physician.ID,
				"decision":         decided,
				"reject_physician": review.RejectPhysician,
			}); err != nil {
				return err
			}

			result = &ReviewResult{
				Document:       *updated,
				PhysicianState: state,
				ApprovedCount:  approved,
				RequiredCount:  len(required),
			}
			return nil
		})
	})
	if err != nil {
		span.RecordError(err)
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, fmt.Errorf("review document: %w: %w", apperr.ErrUnavailable, err)
		}
		return nil, fmt.Errorf("review document: %w", err)
	}

	g.metrics.ObserveReview(string(decided), string(result.PhysicianState))
	entry := g.log.WithFields(logrus.Fields{
		"document_id":     sub.ID,
		"physician_id":    sub.PhysicianID,
		"reviewer":        caller.String(),
		"decision":        decided,
		"physician_state": result.PhysicianState,
		"approved":        result.ApprovedCount,
		"required":        result.RequiredCount,
	})
	if previous != result.PhysicianState {
		entry.WithField("previous_state", previous).Info("physician validation state changed")
	} else {
		entry.Info("document reviewed")
	}

	return result, nil
}

// GetPhysicianState returns the stored aggregate state.
func (g *Gate) GetPhysicianState(ctx context.Context, physicianID uuid.UUID) (State, error) {
	p, err := g.repo.GetPhysician(ctx, physicianID)
	if err != nil {
		return "", err
	}
	return p.State, nil
}

// IsApproved reports whether the physician may expose slots and receive
// bookings. Unknown physicians are not approved.
func (g *Gate) IsApproved(ctx context.Context, physicianID uuid.UUID) (bool, error) {
	state, err := g.GetPhysicianState(ctx, physicianID)
	if errors.Is(err, ErrPhysicianNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return state == StateApproved, nil
}

func (g *Gate) PhysicianStatus(ctx context.Context, caller auth.Caller, physicianID uuid.UUID) (*Status, error) {
	ctx, span := tracer.Start(ctx, "credential.PhysicianStatus")
	defer span.End()
	span.SetAttributes(attribute.String("physician.id", physicianID.String()))

	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("physician status: %w", apperr.ErrNotOwner)
	}

	p, err := g.repo.GetPhysician(ctx, physicianID)
	if err != nil {
		return nil, fmt.Errorf("physician status: %w", err)
	}
	required, err := g.requiredTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("physician status: %w", err)
	}
	subs, err := g.repo.ListSubmissions(ctx, physicianID)
	if err != nil {
		return nil, fmt.Errorf("physician status: %w", err)
	}

	st := summarize(*p, required, subs)
	return &st, nil
}

func (g *Gate) ListDocuments(ctx context.Context, caller auth.Caller, physicianID uuid.UUID) ([]Submission, error) {
	if !caller.IsAdmin() && !caller.Is(auth.RolePhysician, physicianID) {
		return nil, fmt.Errorf("list documents: %w", apperr.ErrNotOwner)
	}
	if _, err := g.repo.GetPhysician(ctx, physicianID); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	subs, err := g.repo.ListSubmissions(ctx, physicianID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return subs, nil
}

// ListPhysiciansByState lists physicians in one validation state. Only
// administrators may look past approved physicians.
func (g *Gate) ListPhysiciansByState(ctx context.Context, caller auth.Caller, state State) ([]Physician, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: unknown validation state %q", apperr.ErrInvalidArgument, state)
	}
	if state != StateApproved && !caller.IsAdmin() {
		return nil, fmt.Errorf("list %s physicians: %w", state, apperr.ErrNotOwner)
	}
	ps, err := g.repo.ListPhysiciansByState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("list physicians: %w", err)
	}
	return ps, nil
}

func (g *Gate) CreateDocumentType(ctx context.Context, caller auth.Caller, name, description string, required bool) (*DocumentType, error) {
	if !caller.IsAdmin() {
		return nil, fmt.Errorf("create document type: %w", apperr.ErrNotOwner)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: document type name is required", apperr.ErrInvalidArgument)
	}

	dt := DocumentType{
		ID:          uuid.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		Required:    required,
		CreatedAt:   g.now().UTC(),
	}
	if err := g.repo.CreateDocumentType(ctx, dt); err != nil {
		return nil, fmt.Errorf("create document type: %w", err)
	}

	g.log.WithFields(logrus.Fields{
		"type_id":  dt.ID,
		"name":     dt.Name,
		"required": dt.Required,
	}).Info("document type created")
	return &dt, nil
}

func (g *Gate) ListDocumentTypes(ctx context.Context) ([]DocumentType, error) {
	types, err := g.repo.ListDocumentTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list document types: %w", err)
	}
	return types, nil
}

func (g *Gate) requiredTypes(ctx context.Context) ([]DocumentType, error) {
	all, err := g.repo.ListDocumentTypes(ctx)
	if err != nil {
		return nil, err
	}
	required := make([]DocumentType, 0, len(all))
	for _, dt := range all {
		if dt.Required {
			required = append(required, dt)
		}
	}
	return required, nil
}

func (g *Gate) append(ctx context.Context, typ events.Type, aggregate string, id uuid.UUID, payload any) error {
	evt, err := events.New(typ, aggregate, id, payload, g.now())
	if err != nil {
		return err
	}
	return g.events.Append(ctx, evt)
}
