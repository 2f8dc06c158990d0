package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

var (
	ErrPhysicianNotFound    = fmt.Errorf("physician not found: %w", apperr.ErrNotFound)
	ErrDocumentNotFound     = fmt.Errorf("document not found: %w", apperr.ErrNotFound)
	ErrDocumentTypeNotFound = fmt.Errorf("document type not found: %w", apperr.ErrInvalidDocumentType)
	ErrAlreadyReviewed      = fmt.Errorf("document %w", apperr.ErrDocumentAlreadyReviewed)

	ErrDuplicateDocumentType = fmt.Errorf("document type name already exists: %w", apperr.ErrInvalidArgument)
)

// Repository contains all DB interactions needed by the gate. Calls made with
// a context carrying a transaction run inside it.
type Repository interface {
	// CreatePhysician inserts p unless it exists and returns the stored row.
	CreatePhysician(ctx context.Context, p Physician) (*Physician, error)
	GetPhysician(ctx context.Context, id uuid.UUID) (*Physician, error)
	// LockPhysician reads the physician and holds its row until the
	// transaction ends.
	LockPhysician(ctx context.Context, id uuid.UUID) (*Physician, error)
	UpdatePhysicianState(ctx context.Context, id uuid.UUID, state State, at time.Time) error
	ListPhysiciansByState(ctx context.Context, state State) ([]Physician, error)

	// CreateDocumentType fails with ErrDuplicateDocumentType when the name
	// is taken.
	CreateDocumentType(ctx context.Context, dt DocumentType) error
	GetDocumentType(ctx context.Context, id uuid.UUID) (*DocumentType, error)
	ListDocumentTypes(ctx context.Context) ([]DocumentType, error)

	CreateSubmission(ctx context.Context, s Submission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*Submission, error)
	// DecideSubmission moves a pending submission to state. It fails with
	// ErrAlreadyReviewed when the submission was already decided.
	DecideSubmission(ctx context.Context, id uuid.UUID, state State, reviewerID uuid.UUID, notes string, rejectPhysician bool, at time.Time) (*Submission, error)
	ListSubmissions(ctx context.Context, physicianID uuid.UUID) ([]Submission, error)
}
