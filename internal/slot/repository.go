package slot

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

var (
	ErrSlotNotFound      = fmt.Errorf("slot not found: %w", apperr.ErrNotFound)
	ErrPhysicianNotFound = fmt.Errorf("physician not found: %w", apperr.ErrNotFound)
	// ErrSlotUnavailable is returned by Reserve when the slot is already
	// held, has started, or does not exist.
	ErrSlotUnavailable = fmt.Errorf("reserve: %w", apperr.ErrSlotNoLongerAvailable)
)

// Repository contains all DB interactions needed by the registry. Calls made
// with a context carrying a transaction run inside it.
type Repository interface {
	// LockPhysician holds the physician row so concurrent slot creation for
	// the same physician serializes.
	LockPhysician(ctx context.Context, physicianID uuid.UUID) error
	FindOverlapping(ctx context.Context, physicianID uuid.UUID, start, end time.Time) ([]Slot, error)
	InsertSlots(ctx context.Context, slots []Slot) error

	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	LockSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	// ListByPhysician returns the physician's slots ordered by start. With
	// availableAfter set only available slots starting after it are returned.
	ListByPhysician(ctx context.Context, physicianID uuid.UUID, availableAfter *time.Time) ([]Slot, error)

	// Reserve flips available from true to false when the slot belongs to
	// physicianID and starts after now. It returns ErrSlotUnavailable otherwise.
	Reserve(ctx context.Context, id, physicianID uuid.UUID, now time.Time) (*Slot, error)
	// Release flips available back to true when the slot starts after now.
	Release(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	SetAvailability(ctx context.Context, id uuid.UUID, available bool, now time.Time) (*Slot, error)
	// HasActiveAppointment reports whether a non-cancelled appointment holds the slot.
	HasActiveAppointment(ctx context.Context, slotID uuid.UUID) (bool, error)
}
