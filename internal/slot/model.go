package slot

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Slot is a bookable interval [StartAt, EndAt) of one physician.
type Slot struct {
	ID          uuid.UUID
	PhysicianID uuid.UUID
	Date        time.Time // clinic local day, midnight
	StartAt     time.Time
	EndAt       time.Time
	Available   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Overlaps reports whether the slot intersects [start, end).
func (s Slot) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && s.EndAt.After(start)
}

// Elapsed reports whether the slot has started at now.
func (s Slot) Elapsed(now time.Time) bool {
	return !s.StartAt.After(now)
}

// Range is a slot creation request on one clinic local day. Start and End
// are offsets from midnight, for example 9h30m.
type Range struct {
	Date  time.Time
	Start time.Duration
	End   time.Duration
}

// Hours is the part of the clinic day slots may cover, as offsets from
// midnight.
type Hours struct {
	Open  time.Duration
	Close time.Duration
}

// DefaultHours are used when no opening hours are configured.
var DefaultHours = Hours{Open: 6 * time.Hour, Close: 22 * time.Hour}

func (h Hours) contains(start, end time.Duration) bool {
	return start >= h.Open && end <= h.Close
}

func (h Hours) String() string {
	return clock(h.Open) + "-" + clock(h.Close)
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
