// Package apperr holds the error kinds shared by the scheduling services.
// Package specific errors wrap one of these so callers can branch on the
// kind with errors.Is without knowing which service produced it.
package apperr

import "errors"

var (
	ErrNotFound                = errors.New("not found")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrInvalidTransition       = errors.New("invalid state transition")
	ErrNotOwner                = errors.New("caller does not own the resource")
	ErrSlotNoLongerAvailable   = errors.New("slot is no longer available")
	ErrSlotReserved            = errors.New("slot is held by an active appointment")
	ErrOverlappingSlot         = errors.New("slot overlaps an existing slot")
	ErrPhysicianNotApproved    = errors.New("physician is not approved")
	ErrDocumentAlreadyReviewed = errors.New("document was already reviewed")
	ErrInvalidDocumentType     = errors.New("invalid document type")
	ErrPatientDoubleBooked     = errors.New("patient already has an appointment at that time")

	// ErrUnavailable marks datastore or infrastructure failures. Callers
	// should retry with backoff; domain errors are never retried.
	ErrUnavailable = errors.New("service unavailable")
)

// Kinds lists every error kind in the order the API checks them.
var Kinds = []error{
	ErrNotFound,
	ErrInvalidArgument,
	ErrInvalidTransition,
	ErrNotOwner,
	ErrSlotNoLongerAvailable,
	ErrSlotReserved,
	ErrOverlappingSlot,
	ErrPhysicianNotApproved,
	ErrDocumentAlreadyReviewed,
	ErrInvalidDocumentType,
	ErrPatientDoubleBooked,
	ErrUnavailable,
}

// KindOf returns the first kind err wraps, or nil.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range Kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

var codes = map[error]string{
	ErrNotFound:                "not_found",
	ErrInvalidArgument:         "invalid_argument",
	ErrInvalidTransition:       "invalid_transition",
	ErrNotOwner:                "not_owner",
	ErrSlotNoLongerAvailable:   "slot_no_longer_available",
	ErrSlotReserved:            "slot_reserved",
	ErrOverlappingSlot:         "overlapping_slot",
	ErrPhysicianNotApproved:    "physician_not_approved",
	ErrDocumentAlreadyReviewed: "document_already_reviewed",
	ErrInvalidDocumentType:     "invalid_document_type",
	ErrPatientDoubleBooked:     "patient_double_booked",
	ErrUnavailable:             "unavailable",
}

// Code returns the stable machine code of err's kind, or "internal_error".
func Code(err error) string {
	if k := KindOf(err); k != nil {
		return codes[k]
	}
	return "internal_error"
}
