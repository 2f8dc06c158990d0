package slot

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
)

// bounds resolves a Range to absolute instants in loc. The range must lie
// within the opening hours.
func bounds(r Range, loc *time.Location, hours Hours) (day, start, end time.Time, err error) {
	if r.Start < 0 || r.End > 24*time.Hour {
		return day, start, end, fmt.Errorf("%w: times must fall within one day", apperr.ErrInvalidArgument)
	}
	if r.End <= r.Start {
		return day, start, end, fmt.Errorf("%w: end must be after start", apperr.ErrInvalidArgument)
	}
	if !hours.contains(r.Start, r.End) {
		return day, start, end, fmt.Errorf("%w: slots must fall within opening hours %s", apperr.ErrInvalidArgument, hours)
	}

	y, m, d := r.Date.Date()
	day = time.Date(y, m, d, 0, 0, 0, 0, loc)
	start = atOffset(y, m, d, r.Start, loc)
	end = atOffset(y, m, d, r.End, loc)
	return day, start, end, nil
}

// atOffset builds the wall clock time off after midnight so that DST days
// keep their local clock readings.
func atOffset(y int, m time.Month, d int, off time.Duration, loc *time.Location) time.Time {
	h := int(off / time.Hour)
	mins := int((off % time.Hour) / time.Minute)
	return time.Date(y, m, d, h, mins, 0, 0, loc)
}

// Partition cuts [start, end) into consecutive granules. A trailing remainder
// shorter than one granule is dropped.
func Partition(physicianID uuid.UUID, day, start, end time.Time, granule time.Duration, now time.Time) ([]Slot, error) {
	if granule <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive", apperr.ErrInvalidArgument)
	}
	if end.Sub(start) < granule {
		return nil, fmt.Errorf("%w: range is shorter than one %s slot", apperr.ErrInvalidArgument, granule)
	}

	var slots []Slot
	for t := start; !t.Add(granule).After(end); t = t.Add(granule) {
		slots = append(slots, Slot{
			ID:          uuid.New(),
			PhysicianID: physicianID,
			Date:        day,
			StartAt:     t.UTC(),
			EndAt:       t.Add(granule).UTC(),
			Available:   true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return slots, nil
}
