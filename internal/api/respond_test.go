package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hackgods/telemed-scheduling/internal/apperr"
	"github.com/hackgods/telemed-scheduling/pkg/logger"
)

func TestWriteServiceError(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", apperr.ErrNotFound), http.StatusNotFound, "not_found"},
		{apperr.ErrInvalidArgument, http.StatusBadRequest, "invalid_argument"},
		{apperr.ErrNotOwner, http.StatusForbidden, "not_owner"},
		{apperr.ErrPhysicianNotApproved, http.StatusForbidden, "physician_not_approved"},
		{apperr.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
		{fmt.Errorf("book: %w", apperr.ErrSlotNoLongerAvailable), http.StatusConflict, "slot_no_longer_available"},
		{apperr.ErrSlotReserved, http.StatusConflict, "slot_reserved"},
		{apperr.ErrOverlappingSlot, http.StatusConflict, "overlapping_slot"},
		{apperr.ErrPatientDoubleBooked, http.StatusConflict, "patient_double_booked"},
		{apperr.ErrDocumentAlreadyReviewed, http.StatusConflict, "document_already_reviewed"},
		{apperr.ErrInvalidDocumentType, http.StatusUnprocessableEntity, "invalid_document_type"},
		{apperr.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeServiceError(rec, httptest.NewRequest(http.MethodGet, "/", nil), logger.Discard(), tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rec).Error)
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "2", rec.Header().Get("Retry-After"))
			} else {
				assert.Empty(t, rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"09:00", 9 * time.Hour, true},
		{"13:45", 13*time.Hour + 45*time.Minute, true},
		{"00:00", 0, true},
		{"24:00", 24 * time.Hour, true},
		{"24:30", 0, false},
		{"9:00", 0, false},
		{"09:60", 0, false},
		{"ab:cd", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, err := parseClock(tt.in, "start")
		if !tt.ok {
			assert.ErrorIs(t, err, apperr.ErrInvalidArgument, tt.in)
			continue
		}
		assert.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
