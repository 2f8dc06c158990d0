package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

const retryAfterSeconds = 2

var statusByKind = map[error]int{
	apperr.ErrNotFound:                http.StatusNotFound,
	apperr.ErrInvalidArgument:         http.StatusBadRequest,
	apperr.ErrNotOwner:                http.StatusForbidden,
	apperr.ErrPhysicianNotApproved:    http.StatusForbidden,
	apperr.ErrInvalidTransition:       http.StatusConflict,
	apperr.ErrSlotNoLongerAvailable:   http.StatusConflict,
	apperr.ErrSlotReserved:            http.StatusConflict,
	apperr.ErrOverlappingSlot:         http.StatusConflict,
	apperr.ErrPatientDoubleBooked:     http.StatusConflict,
	apperr.ErrDocumentAlreadyReviewed: http.StatusConflict,
	apperr.ErrInvalidDocumentType:     http.StatusUnprocessableEntity,
	apperr.ErrUnavailable:             http.StatusServiceUnavailable,
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// writeServiceError maps a service error to its HTTP status and machine code.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	kind := apperr.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		log.WithRequestID(GetRequestID(r.Context())).WithError(err).Error("unhandled service error")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	if status == http.StatusServiceUnavailable {
		log.WithRequestID(GetRequestID(r.Context())).WithError(err).Warn("dependency unavailable")
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
		writeError(w, status, apperr.Code(err), "temporarily unavailable, retry later")
		return
	}

	writeError(w, status, apperr.Code(err), err.Error())
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: could not parse JSON body", apperr.ErrInvalidArgument)
	}
	return nil
}

func parseUUID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", apperr.ErrInvalidArgument, field)
	}
	return id, nil
}

func urlUUID(r *http.Request, param string) (uuid.UUID, error) {
	return parseUUID(chi.URLParam(r, param), param)
}

func parseDate(raw string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date must be YYYY-MM-DD", apperr.ErrInvalidArgument)
	}
	return d, nil
}

// parseClock reads HH:MM as an offset from midnight. 24:00 is accepted as
// the end of the day.
func parseClock(raw, field string) (time.Duration, error) {
	bad := fmt.Errorf("%w: %s must be HH:MM", apperr.ErrInvalidArgument, field)

	hh, mm, ok := strings.Cut(strings.TrimSpace(raw), ":")
	if !ok || len(hh) != 2 || len(mm) != 2 {
		return 0, bad
	}
	h, err := strconv.Atoi(hh)
	if err != nil {
		return 0, bad
	}
	m, err := strconv.Atoi(mm)
	if err != nil {
		return 0, bad
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, bad
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute, nil
}
